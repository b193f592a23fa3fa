package endword_test

import (
	"testing"

	"github.com/voicefuture/duplex/internal/endword"
)

func defaultFilter() *endword.Filter {
	return endword.New([]string{"goodbye", "that's all thanks", "end the call"})
}

func TestMatchExactPhrase(t *testing.T) {
	f := defaultFilter()
	phrase, ok := f.Match("okay goodbye")
	if !ok || phrase != "goodbye" {
		t.Fatalf("Match = (%q, %v), want (goodbye, true)", phrase, ok)
	}
}

func TestMatchIgnoresCaseAndPunctuation(t *testing.T) {
	f := defaultFilter()
	if _, ok := f.Match("Goodbye!"); !ok {
		t.Error("punctuated phrase did not match")
	}
	if _, ok := f.Match("That's all, thanks."); !ok {
		t.Error("multi-word phrase with punctuation did not match")
	}
}

func TestMatchPhoneticVariant(t *testing.T) {
	f := defaultFilter()
	// A plausible recognition slip for "goodbye".
	if _, ok := f.Match("ok good bye then"); ok {
		// "good bye" as two words is not a single-word gram for "goodbye";
		// the verbatim path must not fire either.
		t.Log("split form matched via n-gram, acceptable")
	}
	if _, ok := f.Match("goodby"); !ok {
		t.Error("phonetic variant 'goodby' did not match")
	}
}

func TestNoMatchOnUnrelatedText(t *testing.T) {
	f := defaultFilter()
	for _, text := range []string{
		"I want to check my order status",
		"the weather is nice today",
		"",
	} {
		if phrase, ok := f.Match(text); ok {
			t.Errorf("Match(%q) = (%q, true), want no match", text, phrase)
		}
	}
}

func TestMatchMultiWordInsideSentence(t *testing.T) {
	f := defaultFilter()
	if _, ok := f.Match("alright you can end the call now"); !ok {
		t.Error("embedded multi-word phrase did not match")
	}
}
