package config

import (
	"strings"
	"testing"
	"time"
)

func testSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll([]ConfigOption{
		{Key: "flag", Type: TypeBool, Default: "false", Description: "A flag"},
		{Key: "count", Type: TypeInt, Default: "3", Description: "A count", EnvVar: "TEST_COUNT"},
		{Key: "mode", Type: TypeString, Default: "a", Choices: []string{"a", "b"}},
		{Key: "mode", Section: "run", Type: TypeString, Choices: []string{"a", "b", "c"}},
		{Key: "wait", Section: "run", Type: TypeDuration, Default: "1s"},
	})
	return s
}

func TestSchemaLookup(t *testing.T) {
	s := testSchema()
	if o := s.Lookup("", "flag"); o == nil || o.Type != TypeBool {
		t.Fatalf("Lookup flag = %+v", o)
	}
	if o := s.Lookup("run", "wait"); o == nil || o.Default != "1s" {
		t.Fatalf("Lookup run.wait = %+v", o)
	}
	if s.Lookup("", "wait") != nil {
		t.Error("section option must not be global")
	}
	if s.Lookup("missing", "flag") != nil {
		t.Error("unknown section must not resolve")
	}
}

func TestSchemaIsKnown_GlobalFallbackInSection(t *testing.T) {
	s := testSchema()
	if !s.IsKnown("run", "flag") {
		t.Error("global keys are known in sections")
	}
	if !s.IsKnown("other", "count") {
		t.Error("global keys are known in unregistered sections")
	}
	if s.IsKnown("", "wait") {
		t.Error("section keys are not known globally")
	}
}

func TestSchemaSections(t *testing.T) {
	s := testSchema()
	if got := s.Sections(); len(got) != 1 || got[0] != "run" {
		t.Errorf("Sections = %v", got)
	}
	if got := len(s.GlobalOptions()); got != 3 {
		t.Errorf("GlobalOptions = %d", got)
	}
	if got := len(s.SectionOptions("run")); got != 2 {
		t.Errorf("SectionOptions = %d", got)
	}
}

func TestValidateConfig(t *testing.T) {
	s := testSchema()
	c := NewConfig()
	c.SetGlobalOption("flag", "yes")
	c.SetGlobalOption("count", "x")
	c.SetGlobalOption("mode", "c")
	c.SetGlobalOption("bogus", "1")
	c.SetCommandOption("run", "mode", "c")
	c.SetCommandOption("run", "wait", "soon")
	c.SetCommandOption("run", "flag", "2")
	c.SetCommandOption("run", "nope", "")

	issues := ValidateConfig(c, s)
	want := []string{
		`global option "count": expected int, got "x"`,
		`global option "mode": expected one of a, b, got "c"`,
		`option "flag" in [run]: expected bool, got "2"`,
		`option "wait" in [run]: expected duration, got "soon"`,
		`unknown global option: "bogus" (value: "1")`,
		`unknown option for command "run": "nope" (value: "")`,
	}
	if strings.Join(issues, "\n") != strings.Join(want, "\n") {
		t.Errorf("issues:\n%s\nwant:\n%s", strings.Join(issues, "\n"), strings.Join(want, "\n"))
	}

	if issues := ValidateConfig(NewConfig(), s); len(issues) != 0 {
		t.Errorf("empty config issues: %v", issues)
	}
}

func TestValidateType(t *testing.T) {
	for _, tc := range []struct {
		typ   OptionType
		value string
		ok    bool
	}{
		{TypeString, "anything", true},
		{"", "", true},
		{TypeBool, "on", true},
		{TypeBool, "2", false},
		{TypeInt, "-4", true},
		{TypeInt, "4.5", false},
		{TypeDuration, "250ms", true},
		{TypeDuration, "5", false},
		{"weird", "x", false},
	} {
		err := validateType(tc.typ, tc.value)
		if (err == nil) != tc.ok {
			t.Errorf("validateType(%q, %q) = %v", tc.typ, tc.value, err)
		}
	}
}

func TestTypedGetters(t *testing.T) {
	c := NewConfig()
	c.SetGlobalOption("s", "str")
	c.SetGlobalOption("b", "yes")
	c.SetGlobalOption("i", "12")
	c.SetGlobalOption("d", "2m")
	c.SetGlobalOption("bad", "?")

	if c.GetString("s") != "str" || c.GetString("missing") != "" {
		t.Error("GetString")
	}
	if c.GetStringDefault("missing", "def") != "def" || c.GetStringDefault("s", "def") != "str" {
		t.Error("GetStringDefault")
	}
	if !c.GetBool("b") || c.GetBool("bad") || c.GetBool("missing") {
		t.Error("GetBool")
	}
	if c.GetInt("i") != 12 || c.GetInt("bad") != 0 {
		t.Error("GetInt")
	}
	if c.GetDuration("d") != 2*time.Minute || c.GetDuration("bad") != 0 {
		t.Error("GetDuration")
	}
}

func TestGetWithEnv(t *testing.T) {
	c := NewConfig()
	c.SetGlobalOption("k", "config")
	if got := c.GetWithEnv("k", ""); got != "config" {
		t.Errorf("got %q", got)
	}
	t.Setenv("JSDBG_TEST_K", "")
	if got := c.GetWithEnv("k", "JSDBG_TEST_K"); got != "" {
		t.Errorf("empty env var should win, got %q", got)
	}
}

func TestSchemaResolve(t *testing.T) {
	s := testSchema()
	c := NewConfig()

	if got := s.Resolve(c, "count"); got != "3" {
		t.Errorf("default: got %q", got)
	}
	c.SetGlobalOption("count", "7")
	if got := s.Resolve(c, "count"); got != "7" {
		t.Errorf("config: got %q", got)
	}
	t.Setenv("TEST_COUNT", "9")
	if got := s.Resolve(c, "count"); got != "9" {
		t.Errorf("env: got %q", got)
	}
	if got := s.Resolve(c, "unregistered"); got != "" {
		t.Errorf("unknown: got %q", got)
	}
}

func TestSchemaResolveCommand(t *testing.T) {
	s := testSchema()
	c := NewConfig()

	if got := s.ResolveCommand(c, "run", "wait"); got != "1s" {
		t.Errorf("section default: got %q", got)
	}
	if got := s.ResolveCommand(c, "run", "mode"); got != "a" {
		t.Errorf("global default: got %q", got)
	}
	c.SetGlobalOption("mode", "b")
	if got := s.ResolveCommand(c, "run", "mode"); got != "b" {
		t.Errorf("global value: got %q", got)
	}
	c.SetCommandOption("run", "mode", "c")
	if got := s.ResolveCommand(c, "run", "mode"); got != "c" {
		t.Errorf("section value: got %q", got)
	}
	t.Setenv("TEST_COUNT", "11")
	c.SetCommandOption("run", "count", "4")
	if got := s.ResolveCommand(c, "run", "count"); got != "11" {
		t.Errorf("env: got %q", got)
	}
}

func TestFormatHelp(t *testing.T) {
	help := testSchema().FormatHelp()
	for _, want := range []string{
		"Global Options:\n",
		"type: bool, default: false",
		"env: TEST_COUNT",
		"one of: a|b",
		"\n[run] Options:\n",
		"type: duration, default: 1s",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
	if NewSchema().FormatHelp() != "" {
		t.Error("empty schema should produce no help")
	}
}

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()
	for _, key := range []string{KeyLogFile, KeyLogLevel, KeyLogMaxSizeMB, KeyLogMaxFiles, KeyLogBufferSize, KeyPauseOnExceptions, KeySyncTimeout, KeyPretty} {
		if s.Lookup("", key) == nil {
			t.Errorf("missing global option %q", key)
		}
	}
	if s.Lookup("debug", KeyResourceName) == nil {
		t.Error("missing [debug] resource-name")
	}
	if got := s.Resolve(NewConfig(), KeySyncTimeout); got != "5s" {
		t.Errorf("sync-timeout default = %q", got)
	}
	for _, o := range s.GlobalOptions() {
		if o.Default == "" {
			continue
		}
		if err := o.validate(o.Default); err != nil {
			t.Errorf("default of %q is invalid: %v", o.Key, err)
		}
	}
}
