package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

type ComposerConfig struct {
	Persona      string
	DomainNotes  string
	Instructions string
	SummaryLimit int
	Temperature  float64
	MaxTokens    int
}

type AnswerComposer struct {
	model ports.ChatModel
	cfg   ComposerConfig
}

func NewAnswerComposer(model ports.ChatModel, cfg ComposerConfig) *AnswerComposer {
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	return &AnswerComposer{model: model, cfg: cfg}
}

func (c *AnswerComposer) Compose(
	ctx context.Context,
	userText string,
	matches []domain.ScoredMatch,
	intent domain.SearchIntent,
	history string,
) (string, error) {
	prompt, err := c.buildPrompt(userText, matches, intent, history)
	if err != nil {
		return "", domain.WrapError(domain.ErrComposition, "build composer prompt", err)
	}

	text, err := c.model.Complete(ctx, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.ChatSystem, Content: c.cfg.Persona},
			{Role: domain.ChatUser, Content: prompt},
		},
		Temperature: domain.Float(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrComposition, "compose answer", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrComposition, "compose answer", errors.New("empty model output"))
	}
	return text, nil
}

func (c *AnswerComposer) buildPrompt(
	userText string,
	matches []domain.ScoredMatch,
	intent domain.SearchIntent,
	history string,
) (string, error) {
	intentJSON, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal intent: %w", err)
	}
	summaryJSON, err := json.MarshalIndent(summarizeMatches(matches, c.cfg.SummaryLimit), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result summary: %w", err)
	}

	history = strings.TrimSpace(history)
	if history == "" {
		history = "(none)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Additional Data: \"%s\"\n\n", strings.TrimSpace(c.cfg.DomainNotes))
	fmt.Fprintf(&b, "User query: \"%s\"\n\n", userText)
	fmt.Fprintf(&b, "Search parameters used:\n%s\n\n", intentJSON)
	fmt.Fprintf(&b, "Top search results:\n%s\n\n", summaryJSON)
	fmt.Fprintf(&b, "Total results found: %d\n\n", len(matches))
	fmt.Fprintf(&b, "Chat history:\n%s\n\n", history)
	b.WriteString(strings.TrimSpace(c.cfg.Instructions))
	return b.String(), nil
}

// matchSummary is the bounded view of a match sent to the model. Unknown
// attributes marshal as null.
type matchSummary struct {
	Name              *string           `json:"name"`
	Brand             *string           `json:"brand"`
	SupplierBrand     *string           `json:"brand_supplier_detail"`
	Price             *float64          `json:"price"`
	UnitPrice         *float64          `json:"unit_price"`
	Weight            *float64          `json:"weight"`
	Dimensions        *string           `json:"dimensions"`
	PackageInfo       *string           `json:"quantity_package_info"`
	Categories        *string           `json:"categories"`
	Status            *string           `json:"status"`
	ImageURL          *string           `json:"image_url"`
	MainImageURL      *string           `json:"detail_page_main_image_url"`
	MainImageAlt      *string           `json:"detail_page_main_image_alt"`
	Thumbnails        []domain.ImageRef `json:"detail_page_thumbnail_images"`
	Link              *string           `json:"link"`
	SKU               *string           `json:"sku"`
	UPC               *string           `json:"upc"`
	ProductCode       *string           `json:"product_code_from_url"`
	ItemNumber        *string           `json:"item_number_from_name"`
	RelatedCount      *int              `json:"related_products_count"`
	OtherLikeCount    *int              `json:"other_like_products_count"`
	RelatedProducts   []string          `json:"related_products"`
	OtherLikeProducts []string          `json:"other_like_products"`
	Prop65Warning     *string           `json:"proposition_65_warning"`
	TableCaption      *string           `json:"table_caption"`
	RelevanceScore    float64           `json:"relevance_score"`
}

func summarizeMatches(matches []domain.ScoredMatch, limit int) []matchSummary {
	if limit > len(matches) {
		limit = len(matches)
	}
	out := make([]matchSummary, 0, limit)
	for _, m := range matches[:limit] {
		p := m.Product
		name := p.Name
		if name == nil {
			name = p.NameDetail
		}
		out = append(out, matchSummary{
			Name:              name,
			Brand:             p.Brand,
			SupplierBrand:     p.SupplierBrand,
			Price:             p.Price,
			UnitPrice:         p.UnitPrice,
			Weight:            p.Weight,
			Dimensions:        p.Dimensions,
			PackageInfo:       p.PackageInfo,
			Categories:        p.Categories,
			Status:            p.Status,
			ImageURL:          p.ImageURL,
			MainImageURL:      p.MainImageURL,
			MainImageAlt:      p.MainImageAlt,
			Thumbnails:        p.Thumbnails,
			Link:              p.DetailURL,
			SKU:               p.SKU,
			UPC:               p.UPC,
			ProductCode:       p.ProductCode,
			ItemNumber:        p.ItemNumber,
			RelatedCount:      p.RelatedCount,
			OtherLikeCount:    p.OtherLikeCount,
			RelatedProducts:   p.RelatedProducts,
			OtherLikeProducts: p.OtherLikeProducts,
			Prop65Warning:     p.Prop65Warning,
			TableCaption:      p.TableCaption,
			RelevanceScore:    m.Score,
		})
	}
	return out
}
