package callctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argsOf(src string) ArgumentList {
	return BuildArguments(Filter(lexBasic(src, 0, 1)))
}

func TestBuildArguments(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		completed []ArgumentValue
		current   *ArgumentValue
	}{
		{
			name:      "empty",
			input:     "",
			completed: []ArgumentValue{},
		},
		{
			name:      "open string",
			input:     "'app.na",
			completed: []ArgumentValue{},
			current:   &ArgumentValue{Kind: ValueString, Text: "app.na"},
		},
		{
			name:  "after comma",
			input: "'a', 2, ",
			completed: []ArgumentValue{
				{Kind: ValueString, Text: "a"},
				{Kind: ValueOther, Text: "2"},
			},
		},
		{
			name:  "nested call is one argument",
			input: "foo(1, 2), $x",
			completed: []ArgumentValue{
				{Kind: ValueOther, Text: "foo(1,2)"},
			},
			current: &ArgumentValue{Kind: ValueOther, Text: "$x"},
		},
		{
			name:  "closure",
			input: "function ($q) use ($x) { return $q->where('a', 1); }, ",
			completed: []ArgumentValue{
				{Kind: ValueClosure, Text: "function($q)use($x){return $q->where('a',1);}"},
			},
		},
		{
			name:  "static arrow function",
			input: "static fn ($q) => $q, ",
			completed: []ArgumentValue{
				{Kind: ValueClosure, Text: "static fn($q)=>$q"},
			},
		},
		{
			name:  "new expression keeps word spacing",
			input: "new Foo, ",
			completed: []ArgumentValue{
				{Kind: ValueOther, Text: "new Foo"},
			},
		},
		{
			name:  "closed array",
			input: "['a' => 1, 'b'], ",
			completed: []ArgumentValue{
				{
					Kind: ValueArray,
					Text: "['a'=>1,'b']",
					Entries: []ArrayEntry{
						{Key: &ArgumentValue{Kind: ValueString, Text: "a"}, Value: ArgumentValue{Kind: ValueOther, Text: "1"}},
						{Value: ArgumentValue{Kind: ValueString, Text: "b"}},
					},
				},
			},
		},
		{
			name:  "array followed by operator is not an array",
			input: "['a'] + $b, ",
			completed: []ArgumentValue{
				{Kind: ValueOther, Text: "['a']+$b"},
			},
		},
		{
			name:      "unmatched closer stops",
			input:     "'a', 'b') , 'c'",
			completed: []ArgumentValue{{Kind: ValueString, Text: "a"}},
			current:   &ArgumentValue{Kind: ValueString, Text: "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsOf(tt.input)
			assert.Equal(t, tt.completed, got.Arguments)
			assert.Equal(t, len(tt.completed), got.AutocompletingIndex)
			assert.Equal(t, tt.current, got.Current)
		})
	}
}

func TestBuildArguments_OpenArray(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		entries    int
		wantKey    bool
		wantValue  bool
		cursorText string
	}{
		{name: "first key", input: "['", entries: 1, wantKey: true},
		{name: "typed key", input: "['na", entries: 1, wantKey: true, cursorText: "na"},
		{name: "value", input: "['name' => 'jo", entries: 1, wantValue: true, cursorText: "jo"},
		{name: "empty value", input: "['name' => ", entries: 1, wantValue: true},
		{name: "phantom after comma", input: "['a' => 1, ", entries: 2, wantKey: true},
		{name: "long syntax", input: "array('a' => 1, 'b' => ", entries: 2, wantValue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsOf(tt.input)
			require.NotNil(t, got.Current)
			require.Equal(t, ValueArray, got.Current.Kind)
			require.Len(t, got.Current.Entries, tt.entries)

			last := got.Current.Entries[tt.entries-1]
			assert.Equal(t, tt.wantKey, last.AutocompletingKey)
			assert.Equal(t, tt.wantValue, last.AutocompletingValue)
			assert.Equal(t, tt.cursorText, last.Value.Text)
			for _, e := range got.Current.Entries[:tt.entries-1] {
				assert.False(t, e.AutocompletingKey || e.AutocompletingValue)
			}
		})
	}
}

func TestBuildArguments_OnlyInnermostEntryFlagged(t *testing.T) {
	got := argsOf("['a' => ['b' => [")
	require.NotNil(t, got.Current)

	outer := got.Current.Entries[0]
	assert.False(t, outer.AutocompletingKey || outer.AutocompletingValue)
	middle := outer.Value.Entries[0]
	assert.False(t, middle.AutocompletingKey || middle.AutocompletingValue)

	inner := middle.Value
	require.Equal(t, ValueArray, inner.Kind)
	require.Len(t, inner.Entries, 1)
	assert.True(t, inner.Entries[0].AutocompletingKey)
}

func TestBuildArguments_ArrowFunctionEntry(t *testing.T) {
	got := argsOf("[fn($x) => $x, 'k' => fn($y) => $y], ")
	require.Len(t, got.Arguments, 1)
	entries := got.Arguments[0].Entries
	require.Len(t, entries, 2)

	assert.Nil(t, entries[0].Key)
	assert.Equal(t, ValueClosure, entries[0].Value.Kind)
	require.NotNil(t, entries[1].Key)
	assert.Equal(t, "k", entries[1].Key.Text)
	assert.Equal(t, "fn($y)=>$y", entries[1].Value.Text)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "abc", unquote("'abc'"))
	assert.Equal(t, "abc", unquote(`"abc"`))
	assert.Equal(t, "ab", unquote("'ab"))
	assert.Equal(t, "", unquote("'"))
	assert.Equal(t, "x", unquote("b'x'"))
	assert.Equal(t, "<<<EOT\nx", unquote("<<<EOT\nx"))
}
