package markov

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestBuildScenario(t *testing.T) {
	chain := buildChain(t, sampleText, 2)

	got := chain.Successors("the cat")
	want := []string{"cat sat", "cat ran."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Successors(%q) = %q, want %q", "the cat", got, want)
	}

	wantKeys := []string{"the cat", "cat sat", "sat on", "on the", "the mat.", "mat. the"}
	if !reflect.DeepEqual(chain.Keys(), wantKeys) {
		t.Errorf("Keys() = %q, want %q", chain.Keys(), wantKeys)
	}

	// The final phrase has no successor and is never a key.
	if _, total := chain.Next("cat ran."); total != 0 {
		t.Errorf("expected %q to be a dead end, got total %d", "cat ran.", total)
	}

	flags := chain.Flags()
	if flags.ContainsCapitals {
		t.Error("expected ContainsCapitals to be false for an all-lowercase corpus")
	}
	if !flags.ContainsPunctuation {
		t.Error("expected ContainsPunctuation to be true")
	}
}

func TestBuildOverlapInvariant(t *testing.T) {
	for _, order := range []int{1, 2, 3, 4} {
		t.Run(fmt.Sprintf("Order%d", order), func(t *testing.T) {
			chain := buildChain(t, proseText, order)
			for _, key := range chain.Keys() {
				choices, _ := chain.Next(key)
				for _, choice := range choices {
					if !overlaps(key, choice.Text, order) {
						t.Errorf("%q does not overlap key %q", choice.Text, key)
					}
				}
			}
		})
	}
}

func TestBuildFrequencyFidelity(t *testing.T) {
	text := "a b a b a c a b"
	chain := buildChain(t, text, 1)

	words := strings.Fields(text)
	counts := make(map[[2]string]int)
	for i := 0; i+1 < len(words); i++ {
		counts[[2]string{words[i], words[i+1]}]++
	}

	for pair, want := range counts {
		got := 0
		for _, next := range chain.Successors(pair[0]) {
			if next == pair[1] {
				got++
			}
		}
		if got != want {
			t.Errorf("%q -> %q observed %d times, want %d", pair[0], pair[1], got, want)
		}
	}

	choices, total := chain.Next("a")
	wantChoices := []ChainPhrase{{Text: "b", Freq: 3}, {Text: "c", Freq: 1}}
	if !reflect.DeepEqual(choices, wantChoices) || total != 4 {
		t.Errorf("Next(%q) = %+v, %d; want %+v, 4", "a", choices, total, wantChoices)
	}
}

func TestBuildStyleFlags(t *testing.T) {
	testCases := []struct {
		name        string
		text        string
		capitals    bool
		punctuation bool
	}{
		{name: "plain", text: "one two three four", capitals: false, punctuation: false},
		{name: "capitals only", text: "One two Three four", capitals: true, punctuation: false},
		{name: "punctuation only", text: "one two. three four.", capitals: false, punctuation: true},
		{name: "both", text: proseText, capitals: true, punctuation: true},
		// The final key is never followed by a token, so its period does not count.
		{name: "trailing period ignored", text: "one two three.", capitals: false, punctuation: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			flags := buildChain(t, tc.text, 1).Flags()
			if flags.ContainsCapitals != tc.capitals {
				t.Errorf("ContainsCapitals = %v, want %v", flags.ContainsCapitals, tc.capitals)
			}
			if flags.ContainsPunctuation != tc.punctuation {
				t.Errorf("ContainsPunctuation = %v, want %v", flags.ContainsPunctuation, tc.punctuation)
			}
		})
	}
}

func TestBuildStripsEmphasis(t *testing.T) {
	chain := buildChain(t, "she was _very_ tired and very _tired_ indeed", 2)

	got := chain.Successors("very tired")
	want := []string{"tired and", "tired indeed"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Successors(%q) = %q, want %q", "very tired", got, want)
	}
	for _, key := range chain.Keys() {
		if strings.Contains(key, "_") {
			t.Errorf("key %q still contains an underscore", key)
		}
	}
}

func TestBuildSentinel(t *testing.T) {
	text := `the cat sat \end on the mat`

	t.Run("interactive stops at sentinel", func(t *testing.T) {
		b, _ := NewBuilder(2, nil)
		chain, err := b.Build(strings.NewReader(text), SourceInteractive)
		if err != nil {
			t.Fatalf("Build() failed: %v", err)
		}
		if chain.Len() != 1 {
			t.Errorf("expected 1 key, got %d: %q", chain.Len(), chain.Keys())
		}
		if got := chain.Successors("the cat"); !reflect.DeepEqual(got, []string{"cat sat"}) {
			t.Errorf("unexpected successors %q", got)
		}
	})

	t.Run("bounded treats sentinel as a word", func(t *testing.T) {
		b, _ := NewBuilder(2, nil)
		chain, err := b.Build(strings.NewReader(text), SourceBounded)
		if err != nil {
			t.Fatalf("Build() failed: %v", err)
		}
		if got := chain.Successors("cat sat"); !reflect.DeepEqual(got, []string{`sat \end`}) {
			t.Errorf("unexpected successors %q", got)
		}
		if chain.Len() != 5 {
			t.Errorf("expected 5 keys, got %d", chain.Len())
		}
	})
}

func TestBuildEmptyInput(t *testing.T) {
	testCases := []struct {
		name  string
		text  string
		order int
		kind  SourceKind
	}{
		{name: "empty", text: "", order: 2, kind: SourceBounded},
		{name: "too short", text: "lonely", order: 2, kind: SourceBounded},
		{name: "whitespace", text: "   \n\t  ", order: 1, kind: SourceBounded},
		{name: "sentinel before window fills", text: `one \end two three`, order: 3, kind: SourceInteractive},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBuilder(tc.order, nil)
			if err != nil {
				t.Fatalf("NewBuilder failed: %v", err)
			}
			_, err = b.Build(strings.NewReader(tc.text), tc.kind)
			if !errors.Is(err, ErrEmptyInput) {
				t.Errorf("expected ErrEmptyInput, got %v", err)
			}
		})
	}
}

func TestBuildExactlyOneWindow(t *testing.T) {
	// Enough tokens to fill the window but none to follow it: an empty chain,
	// which the walker then refuses.
	chain := buildChain(t, "just two", 2)
	if chain.Len() != 0 {
		t.Fatalf("expected an empty chain, got %d keys", chain.Len())
	}
	if _, err := NewWalker(1).Generate(chain); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("expected ErrEmptyModel, got %v", err)
	}
}

func TestNewBuilderInvalidOrder(t *testing.T) {
	for _, order := range []int{0, -3} {
		if _, err := NewBuilder(order, nil); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("NewBuilder(%d): expected ErrInvalidOrder, got %v", order, err)
		}
	}
}

func TestDefaultTokenizer(t *testing.T) {
	stream := NewDefaultTokenizer().NewStream(strings.NewReader("  Hello,  world.\n\n\tIt's _fine_  "))

	var got []string
	for {
		token, err := stream.Next()
		if err != nil {
			break
		}
		got = append(got, token.Text)
	}
	want := []string{"Hello,", "world.", "It's", "_fine_"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokens = %q, want %q", got, want)
	}

	t.Run("WithSplitRegex", func(t *testing.T) {
		stream := NewDefaultTokenizer(WithSplitRegex(`[A-Za-z']+`)).NewStream(strings.NewReader("Hello, world.\nIt's fine!"))
		var got []string
		for {
			token, err := stream.Next()
			if err != nil {
				break
			}
			got = append(got, token.Text)
		}
		want := []string{"Hello", "world", "It's", "fine"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("tokens = %q, want %q", got, want)
		}
	})
}

func TestBuildFromStream(t *testing.T) {
	testCases := []struct {
		name     string
		words    []string
		kind     SourceKind
		wantKeys []string
	}{
		{"bounded keeps sentinel", []string{"a", "b", EndOfInputSentinel, "c"}, SourceBounded, []string{"a", "b", EndOfInputSentinel}},
		{"interactive stops at sentinel", []string{"a", "b", EndOfInputSentinel, "c"}, SourceInteractive, []string{"a"}},
		{"emphasis stripped", []string{"_a_", "b", "__", "_a_"}, SourceBounded, []string{"a", "b"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBuilder(1, nil)
			if err != nil {
				t.Fatal(err)
			}
			chain, err := b.BuildFromStream(NewSliceStream(tc.words), tc.kind)
			if err != nil {
				t.Fatalf("BuildFromStream failed: %v", err)
			}
			if got := chain.Keys(); !reflect.DeepEqual(got, tc.wantKeys) {
				t.Errorf("keys = %q, want %q", got, tc.wantKeys)
			}
		})
	}

	b, _ := NewBuilder(2, nil)
	if _, err := b.BuildFromStream(NewSliceStream([]string{"only"}), SourceBounded); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func BenchmarkBuild(b *testing.B) {
	corpus := createBenchmarkCorpus()

	for _, order := range []int{1, 2, 3, 4} {
		b.Run(fmt.Sprintf("Order%d", order), func(b *testing.B) {
			builder, err := NewBuilder(order, nil)
			if err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(len(corpus)))
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := builder.Build(strings.NewReader(corpus), SourceBounded); err != nil {
					b.Fatalf("Build() failed: %v", err)
				}
			}
		})
	}
}
