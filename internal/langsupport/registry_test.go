package langsupport

import "testing"

func TestSupportedLanguages(t *testing.T) {
	r := NewRegistry()

	for _, lang := range []string{"java", "javascript", "typescript"} {
		if !r.Supported(lang) {
			t.Errorf("expected %s to be supported", lang)
		}
		if r.Grammar(lang) == nil {
			t.Errorf("expected %s to have a registered grammar", lang)
		}
	}

	if r.Supported("ruby") {
		t.Errorf("expected ruby to be unsupported")
	}
	if r.Grammar("ruby") != nil {
		t.Errorf("expected nil grammar for unsupported language")
	}
}

func TestSupportedLanguagesListIsNonEmpty(t *testing.T) {
	r := NewRegistry()
	if len(r.SupportedLanguages()) != 3 {
		t.Errorf("expected 3 registered languages, got %d", len(r.SupportedLanguages()))
	}
}
