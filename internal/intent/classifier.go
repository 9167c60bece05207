package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// rule is one entry in the priority chain. The first matching rule wins;
// ordering is the only disambiguation between overlapping patterns (e.g.
// "commande 42" inside a tracking request must not trigger order creation).
type rule struct {
	kind       Kind
	pattern    *regexp.Regexp
	confidence float64
}

var numberPattern = regexp.MustCompile(`\b(\d+)\b`)

// DefaultVocabulary is the closed product-keyword vocabulary scanned by the
// create-order extractor when no tenant catalog vocabulary is supplied.
var DefaultVocabulary = []string{
	"doliprane",
	"paracetamol",
	"ibuprofene",
	"aspirine",
	"efferalgan",
	"smecta",
	"spasfon",
	"vitamine",
}

// Classifier matches normalized text against the ordered rule chain.
type Classifier struct {
	rules      []rule
	vocabulary []string
}

// NewClassifier builds a classifier. vocabulary is the closed set of product
// keywords recognized by the create-order extractor; nil selects
// DefaultVocabulary.
func NewClassifier(vocabulary []string) *Classifier {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	normalized := make([]string, 0, len(vocabulary))
	for _, word := range vocabulary {
		word = Normalize(word)
		if word != "" {
			normalized = append(normalized, word)
		}
	}
	return &Classifier{
		rules: []rule{
			{Greeting, regexp.MustCompile(`\b(bonjour|bonsoir|salut|coucou|hello|hi|hey)\b`), 0.95},
			{Help, regexp.MustCompile(`\b(aide|aidez|help|menu|assistance)\b`), 0.9},
			{ListProducts, regexp.MustCompile(`\b(catalogue|produits?|articles?|products?|catalog)\b`), 0.85},
			{CreateOrder, regexp.MustCompile(`\b(commander|acheter|prendre|order|buy|veux|voudrais|souhaite)\b`), 0.9},
			{TrackOrder, regexp.MustCompile(`\b(statut|status|suivi|suivre|track|tracking|livraison)\b`), 0.9},
			{GenerateQuote, regexp.MustCompile(`\b(devis|quote|quotation)\b`), 0.85},
			{GenerateInvoice, regexp.MustCompile(`\b(facture|invoice)\b`), 0.85},
			{Acknowledge, regexp.MustCompile(`^(ok|okay|d accord|daccord|oui|yes|merci|thanks|thank you|parfait|super|top)[\s!.]*$`), 0.7},
			{Goodbye, regexp.MustCompile(`\b(au revoir|bye|goodbye|a bientot|a plus|ciao)\b`), 0.8},
		},
		vocabulary: normalized,
	}
}

// Classify runs the priority chain over a normalized copy of text. No match
// yields Unknown with confidence 0.1.
func (c *Classifier) Classify(text string) Result {
	normalized := Normalize(text)
	if normalized == "" {
		return Result{Kind: Unknown, Confidence: 0.1}
	}
	for _, r := range c.rules {
		if !r.pattern.MatchString(normalized) {
			continue
		}
		result := Result{Kind: r.kind, Confidence: r.confidence}
		switch r.kind {
		case CreateOrder:
			result.CreateOrder = c.extractOrder(normalized)
		case TrackOrder:
			result.TrackOrder = extractOrderID(normalized)
		}
		return result
	}
	return Result{Kind: Unknown, Confidence: 0.1}
}

// extractOrder scans the vocabulary for a product keyword and picks the
// first integer in the text as quantity. Either field may be absent; the
// dialogue engine asks for whatever is missing.
func (c *Classifier) extractOrder(normalized string) *CreateOrderPayload {
	payload := &CreateOrderPayload{}
	for _, word := range c.vocabulary {
		if strings.Contains(normalized, word) {
			payload.Product = word
			break
		}
	}
	if match := numberPattern.FindString(normalized); match != "" {
		if quantity, err := strconv.Atoi(match); err == nil && quantity > 0 {
			payload.Quantity = quantity
		}
	}
	return payload
}

// extractOrderID treats the first integer in the text as an order id.
func extractOrderID(normalized string) *TrackOrderPayload {
	payload := &TrackOrderPayload{}
	if match := numberPattern.FindString(normalized); match != "" {
		if id, err := strconv.Atoi(match); err == nil && id > 0 {
			payload.OrderID = id
		}
	}
	return payload
}

var diacritics = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c",
	"'", " ", "’", " ",
)

// Normalize lowercases, strips common French diacritics and apostrophes, and
// collapses surrounding punctuation so patterns match regardless of casing.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	lowered = diacritics.Replace(lowered)
	return strings.TrimSpace(lowered)
}
