package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

func imageResults() []domain.ProductResult {
	return []domain.ProductResult{
		{ProductRecord: domain.ProductRecord{
			ID:        "p-1",
			Name:      domain.Text("Aged Cheddar"),
			ImageURL:  domain.Text("https://cdn.example.com/cheddar.png"),
			DetailURL: domain.Text("https://shop.example.com/p/1"),
		}},
		{ProductRecord: domain.ProductRecord{
			ID:           "p-2",
			MainImageURL: domain.Text("https://cdn.example.com/brie-large.png"),
		}},
	}
}

func TestParseComposedAnswerSplitsImages(t *testing.T) {
	text := "Try the aged cheddar! ![inline](https://cdn.example.com/cheddar.png)\nIt is great.\n" +
		"******\n" +
		"![Aged Cheddar](https://cdn.example.com/cheddar.png)\n" +
		"no url on this line\n" +
		"![Brie](https://cdn.example.com/brie-large.png)\n" +
		"![Unknown](https://cdn.example.com/unknown.png)\n" +
		"![Aged Cheddar again](https://cdn.example.com/cheddar.png)\n"

	answer := ParseComposedAnswer(text, imageResults())
	if strings.Contains(answer.Prose, "![") || strings.Contains(answer.Prose, "******") {
		t.Fatalf("prose still holds markup: %q", answer.Prose)
	}
	if !strings.HasPrefix(answer.Prose, "Try the aged cheddar!") {
		t.Fatalf("unexpected prose %q", answer.Prose)
	}
	if len(answer.Images) != 2 {
		t.Fatalf("expected 2 images, got %+v", answer.Images)
	}
	if answer.Images[0].Caption != "Aged Cheddar" || answer.Images[0].DetailURL != "https://shop.example.com/p/1" {
		t.Fatalf("unexpected first card %+v", answer.Images[0])
	}
	if answer.Images[1].Caption != "Product" || answer.Images[1].DetailURL != "#" {
		t.Fatalf("expected fallbacks on second card, got %+v", answer.Images[1])
	}
}

func TestParseComposedAnswerWithoutDelimiter(t *testing.T) {
	answer := ParseComposedAnswer("No images here.", imageResults())
	if answer.Prose != "No images here." || len(answer.Images) != 0 {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestParseComposedAnswerSplitsOnFirstDelimiter(t *testing.T) {
	answer := ParseComposedAnswer("prose ****** ![a](https://cdn.example.com/cheddar.png) ******", imageResults())
	if answer.Prose != "prose" {
		t.Fatalf("unexpected prose %q", answer.Prose)
	}
	if len(answer.Images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(answer.Images))
	}
}

func TestParseComposedAnswerHandlesParenthesesInURLs(t *testing.T) {
	results := []domain.ProductResult{{ProductRecord: domain.ProductRecord{
		ID:       "p-3",
		ImageURL: domain.Text("https://x.com/img(1).jpg"),
	}}}
	text := "Try this ![Brie](https://x.com/img(1).jpg) now\n******\n![Brie](https://x.com/img(1).jpg)\n"

	answer := ParseComposedAnswer(text, results)
	if answer.Prose != "Try this  now" {
		t.Fatalf("image markdown not fully removed: %q", answer.Prose)
	}
	if strings.Contains(answer.Prose, ".jpg") {
		t.Fatalf("url fragment left in prose: %q", answer.Prose)
	}
	if len(answer.Images) != 1 || answer.Images[0].URL != "https://x.com/img(1).jpg" {
		t.Fatalf("unexpected images %+v", answer.Images)
	}
}
