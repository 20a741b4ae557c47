package commands

import (
	"reflect"
	"testing"
)

func TestLookupAction(t *testing.T) {
	tests := []struct {
		token string
		want  Action
	}{
		{"HELP", ActionHelp},
		{"help", ActionHelp},
		{"Ping", ActionPing},
		{"LIST", ActionList},
		{"listbuttons", ActionListButtons},
		{"PRESS", ActionPress},
		{"on", ActionOn},
		{"OFF", ActionOff},
		{"level", ActionLevel},
		{"FOO", ActionUnknown},
		{"", ActionUnknown},
	}
	for _, tt := range tests {
		if got := LookupAction(tt.token); got != tt.want {
			t.Errorf("LookupAction(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestActionString(t *testing.T) {
	if ActionListButtons.String() != "LISTBUTTONS" {
		t.Errorf("String() = %q", ActionListButtons.String())
	}
	if ActionUnknown.String() != "UNKNOWN" {
		t.Errorf("String() = %q", ActionUnknown.String())
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "ON light.x", want: "ON light.x"},
		{name: "surrounding whitespace", input: "  \tPING \t ", want: "PING"},
		{name: "double quotes", input: `"PRESS button.a"`, want: "PRESS button.a"},
		{name: "single quotes and backticks", input: "`'LIST'`", want: "LIST"},
		{name: "control characters removed", input: "\x00O\x01N\x7f kitchen\x1b", want: "ON kitchen"},
		{name: "only control characters", input: "\x01\x02\x03", want: ""},
		{name: "inner whitespace kept", input: "LEVEL  light.x\t50", want: "LEVEL  light.x\t50"},
		{name: "unicode printable kept", input: "ON café", want: "ON café"},
		{name: "ascii separators trimmed", input: "\x1fPING\x1e", want: "PING"},
		{name: "ascii separators kept inside", input: "PRESS\x1cfoo", want: "PRESS\x1cfoo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   Command
	}{
		{name: "empty", input: "", wantOK: false},
		{name: "quotes only", input: `""`, wantOK: false},
		{
			name:   "keyword only",
			input:  "help",
			wantOK: true,
			want:   Command{Action: ActionHelp, Keyword: "HELP", Args: []string{}},
		},
		{
			name:   "level with args",
			input:  "level Light.Living_Room 50",
			wantOK: true,
			want:   Command{Action: ActionLevel, Keyword: "LEVEL", Args: []string{"LIGHT.LIVING_ROOM", "50"}},
		},
		{
			name:   "ascii separators split fields",
			input:  "PRESS\x1cfoo\x1dbar",
			wantOK: true,
			want:   Command{Action: ActionPress, Keyword: "PRESS", Args: []string{"FOO", "BAR"}},
		},
		{
			name:   "unknown with trailing args",
			input:  "foo bar baz",
			wantOK: true,
			want:   Command{Action: ActionUnknown, Keyword: "FOO", Args: []string{"BAR", "BAZ"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCommandArg(t *testing.T) {
	cmd := Command{Args: []string{"A"}}
	if cmd.Arg(0) != "A" || cmd.Arg(1) != "" || cmd.Arg(-1) != "" {
		t.Errorf("Arg() = %q %q %q", cmd.Arg(0), cmd.Arg(1), cmd.Arg(-1))
	}
}
