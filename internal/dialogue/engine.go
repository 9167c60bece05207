// Package dialogue runs the turn-based state machine that produces replies
// and drives the multi-step order flow. All I/O happens through the injected
// store interfaces; the transition logic itself is deterministic.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/comptoirhq/comptoir/internal/catalog"
	"github.com/comptoirhq/comptoir/internal/conversation"
	"github.com/comptoirhq/comptoir/internal/intent"
	"github.com/comptoirhq/comptoir/internal/order"
)

const maxSuggestions = 5

// replyTechnicalDifficulty is sent when a transactional step fails. The
// customer must never see a partial order or an empty answer.
const replyTechnicalDifficulty = "Nous rencontrons un souci technique, merci de réessayer dans quelques instants."

// Engine executes a classified intent against the conversation context and
// the tenant's business data.
type Engine struct {
	catalog   CatalogReader
	orders    OrderStore
	documents DocumentRequester
	logger    *slog.Logger
}

// NewEngine creates the dialogue engine.
func NewEngine(log *slog.Logger, catalogReader CatalogReader, orderStore OrderStore, documents DocumentRequester) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		catalog:   catalogReader,
		orders:    orderStore,
		documents: documents,
		logger:    log.With(slog.String("service", "dialogue")),
	}
}

// Respond advances the conversation one turn. It mutates convo (step and
// draft) and always returns a non-empty reply; store failures surface to the
// user as a generic technical-difficulty message, never as an exception.
func (e *Engine) Respond(ctx context.Context, tenantID, contactID, contactName string, convo *conversation.Context, res intent.Result, rawText string) string {
	// A greeting resets the flow from any state.
	if res.Kind == intent.Greeting {
		convo.Step = conversation.StepWelcome
		convo.Draft = conversation.OrderDraft{}
		return e.greet(ctx, contactID, contactName)
	}

	// Mid-flow turns often classify as unknown ("doliprane", "3"): interpret
	// them against the current step before falling through to the intent.
	if reply, handled := e.continueFlow(ctx, tenantID, contactID, convo, res, rawText); handled {
		return reply
	}

	switch res.Kind {
	case intent.Help:
		return replyHelp
	case intent.ListProducts:
		return e.listProducts(ctx, tenantID, convo)
	case intent.CreateOrder:
		if res.CreateOrder != nil {
			if res.CreateOrder.Product != "" {
				convo.Draft.ProductName = res.CreateOrder.Product
				convo.Draft.ProductID = ""
			}
			if res.CreateOrder.Quantity > 0 {
				convo.Draft.Quantity = res.CreateOrder.Quantity
			}
		}
		return e.advanceOrder(ctx, tenantID, contactID, convo)
	case intent.TrackOrder:
		return e.trackOrder(ctx, tenantID, contactID, res.TrackOrder)
	case intent.GenerateQuote:
		return e.requestDocument(ctx, tenantID, contactID, documentQuote)
	case intent.GenerateInvoice:
		return e.requestDocument(ctx, tenantID, contactID, documentInvoice)
	case intent.Acknowledge:
		return replyAcknowledge
	case intent.Goodbye:
		return replyGoodbye
	default:
		// The unknown path must always answer with a guiding message.
		return replyUnknown
	}
}

// continueFlow interprets a turn as a continuation of the current step. It
// reports handled=false when the message should be dispatched by intent.
func (e *Engine) continueFlow(ctx context.Context, tenantID, contactID string, convo *conversation.Context, res intent.Result, rawText string) (string, bool) {
	switch convo.Step {
	case conversation.StepAwaitingProduct:
		if res.Kind != intent.Unknown && res.Kind != intent.CreateOrder {
			return "", false
		}
		name := productNameFromTurn(res, rawText)
		if name == "" {
			return "", false
		}
		convo.Draft.ProductName = name
		convo.Draft.ProductID = ""
		if res.CreateOrder != nil && res.CreateOrder.Quantity > 0 {
			convo.Draft.Quantity = res.CreateOrder.Quantity
		}
		return e.advanceOrder(ctx, tenantID, contactID, convo), true

	case conversation.StepAwaitingQuantity:
		if convo.Draft.ProductName == "" {
			return "", false
		}
		// Other explicit intents (tracking, help...) take precedence over a
		// number that happens to appear in the text.
		if res.Kind != intent.Unknown && res.Kind != intent.Acknowledge && res.Kind != intent.CreateOrder {
			return "", false
		}
		quantity, ok := quantityFromTurn(res, rawText)
		if !ok {
			return "", false
		}
		convo.Draft.Quantity = quantity
		return e.advanceOrder(ctx, tenantID, contactID, convo), true

	case conversation.StepAwaitingConfirmation:
		normalized := intent.Normalize(rawText)
		switch {
		case isAffirmative(normalized):
			return e.placeOrder(ctx, tenantID, contactID, convo), true
		case isNegative(normalized):
			convo.Step = conversation.StepWelcome
			convo.Draft = conversation.OrderDraft{}
			return replyOrderCancelled, true
		default:
			return replyConfirmPrompt, true
		}
	}
	return "", false
}

// advanceOrder moves the order flow forward from whatever the draft holds.
func (e *Engine) advanceOrder(ctx context.Context, tenantID, contactID string, convo *conversation.Context) string {
	if convo.Draft.ProductName == "" {
		convo.Step = conversation.StepAwaitingProduct
		return replyAskProduct
	}

	product, err := e.catalog.FindFuzzy(ctx, tenantID, convo.Draft.ProductName)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			convo.Step = conversation.StepAwaitingProduct
			return e.suggestProducts(ctx, tenantID, convo.Draft.ProductName)
		}
		e.logger.Error("product lookup failed", slog.Any("error", err))
		return replyTechnicalDifficulty
	}
	convo.Draft.ProductID = product.ID
	convo.Draft.ProductName = product.Name

	if convo.Draft.Quantity <= 0 {
		convo.Step = conversation.StepAwaitingQuantity
		return fmt.Sprintf("Quelle quantité de %s souhaitez-vous ? (stock disponible : %d)", product.Name, product.Stock)
	}
	return e.placeOrder(ctx, tenantID, contactID, convo)
}

func (e *Engine) placeOrder(ctx context.Context, tenantID, contactID string, convo *conversation.Context) string {
	product, err := e.catalog.FindFuzzy(ctx, tenantID, convo.Draft.ProductName)
	if err != nil {
		e.logger.Error("product re-lookup failed", slog.Any("error", err))
		return replyTechnicalDifficulty
	}

	quantity := convo.Draft.Quantity
	created, err := e.orders.Create(ctx, tenantID, contactID, product, quantity)
	if err != nil {
		var stockErr *order.InsufficientStockError
		if errors.As(err, &stockErr) {
			// Stay in the quantity step so the customer can answer with a
			// smaller number.
			convo.Step = conversation.StepAwaitingQuantity
			convo.Draft.Quantity = 0
			return fmt.Sprintf("Stock insuffisant pour %s : il reste %d en stock. Quelle quantité souhaitez-vous ?",
				stockErr.ProductName, stockErr.Available)
		}
		e.logger.Error("order creation failed",
			slog.String("tenant_id", tenantID),
			slog.String("contact_id", contactID),
			slog.Any("error", err))
		return replyTechnicalDifficulty
	}

	convo.Step = conversation.StepIdle
	convo.Draft = conversation.OrderDraft{}
	return fmt.Sprintf("Commande %s enregistrée : %d x %s pour un total de %s. Merci !",
		created.Reference(), quantity, product.Name, formatEuros(created.TotalCents))
}

func (e *Engine) greet(ctx context.Context, contactID, contactName string) string {
	name := strings.TrimSpace(contactName)
	greeting := "Bonjour"
	if name != "" {
		greeting = "Bonjour " + name
	}
	summary, err := e.orders.Summarize(ctx, contactID)
	if err != nil {
		e.logger.Warn("order summary failed", slog.Any("error", err))
		return greeting + " ! Comment puis-je vous aider ?"
	}
	if summary.Count == 0 {
		return greeting + " ! Bienvenue, envoyez \"produits\" pour découvrir notre catalogue."
	}
	return fmt.Sprintf("%s ! Ravi de vous revoir. Votre dernière commande CMD-%d est %s. Comment puis-je vous aider ?",
		greeting, summary.LastNumber, statusLabel(summary.LastStatus))
}

func (e *Engine) listProducts(ctx context.Context, tenantID string, convo *conversation.Context) string {
	products, err := e.catalog.List(ctx, tenantID, 10)
	if err != nil {
		e.logger.Error("catalog list failed", slog.Any("error", err))
		return replyTechnicalDifficulty
	}
	if len(products) == 0 {
		return "Notre catalogue est vide pour le moment."
	}
	var b strings.Builder
	b.WriteString("Voici nos produits :\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- %s : %s (stock %d)\n", p.Name, formatEuros(p.UnitPriceCents), p.Stock)
	}
	b.WriteString("Répondez avec le nom du produit pour commander.")
	convo.Step = conversation.StepAwaitingProduct
	return b.String()
}

func (e *Engine) suggestProducts(ctx context.Context, tenantID, asked string) string {
	names, err := e.catalog.Suggest(ctx, tenantID, maxSuggestions)
	if err != nil || len(names) == 0 {
		return fmt.Sprintf("Nous ne trouvons pas \"%s\" dans notre catalogue. Envoyez \"produits\" pour voir nos articles.", asked)
	}
	return fmt.Sprintf("Nous ne trouvons pas \"%s\". Vouliez-vous dire : %s ?", asked, strings.Join(names, ", "))
}

func (e *Engine) trackOrder(ctx context.Context, tenantID, contactID string, payload *intent.TrackOrderPayload) string {
	var (
		found order.Order
		err   error
	)
	if payload != nil && payload.OrderID > 0 {
		found, err = e.orders.GetByNumber(ctx, tenantID, int64(payload.OrderID))
	} else {
		// No explicit id: fall back to the sender's most recent order.
		found, err = e.orders.MostRecent(ctx, contactID)
	}
	if errors.Is(err, order.ErrOrderNotFound) {
		if payload != nil && payload.OrderID > 0 {
			return fmt.Sprintf("Aucune commande n°%d trouvée. Vérifiez la référence et réessayez.", payload.OrderID)
		}
		return "Vous n'avez pas encore de commande chez nous. Envoyez \"produits\" pour commencer."
	}
	if err != nil {
		e.logger.Error("order lookup failed", slog.Any("error", err))
		return replyTechnicalDifficulty
	}
	return fmt.Sprintf("Votre commande %s est %s (total %s).",
		found.Reference(), statusLabel(found.Status), formatEuros(found.TotalCents))
}

type documentKind string

const (
	documentQuote   documentKind = "devis"
	documentInvoice documentKind = "facture"
)

// requestDocument records the request with the external document collaborator
// and confirms. The PDF itself is produced out of band.
func (e *Engine) requestDocument(ctx context.Context, tenantID, contactID string, kind documentKind) string {
	last, err := e.orders.MostRecent(ctx, contactID)
	if errors.Is(err, order.ErrOrderNotFound) {
		return fmt.Sprintf("Vous n'avez pas encore de commande : impossible de générer un %s. Envoyez \"produits\" pour commander.", kind)
	}
	if err != nil {
		e.logger.Error("document order lookup failed", slog.Any("error", err))
		return replyTechnicalDifficulty
	}
	if e.documents != nil {
		if kind == documentQuote {
			e.documents.RequestQuote(ctx, tenantID, last.ID)
		} else {
			e.documents.RequestInvoice(ctx, tenantID, last.ID)
		}
	}
	return fmt.Sprintf("Votre %s pour la commande %s est en cours de génération, vous le recevrez sous peu.", kind, last.Reference())
}

const (
	replyHelp = "Je peux vous aider à : consulter nos produits (\"produits\"), passer une commande (\"je veux commander ...\"), " +
		"suivre une commande (\"statut commande 42\"), ou demander un devis ou une facture."
	replyAskProduct     = "Quel produit souhaitez-vous commander ? Envoyez \"produits\" pour voir le catalogue."
	replyAcknowledge    = "Avec plaisir ! N'hésitez pas si vous avez besoin d'autre chose."
	replyGoodbye        = "Au revoir et à bientôt !"
	replyUnknown        = "Désolé, je n'ai pas compris. Envoyez \"aide\" pour voir ce que je sais faire, ou \"produits\" pour consulter le catalogue."
	replyOrderCancelled = "Commande annulée. Envoyez \"produits\" si vous souhaitez recommencer."
	replyConfirmPrompt  = "Merci de répondre par oui ou par non pour confirmer la commande."
)

func productNameFromTurn(res intent.Result, rawText string) string {
	if res.CreateOrder != nil && res.CreateOrder.Product != "" {
		return res.CreateOrder.Product
	}
	normalized := intent.Normalize(rawText)
	// A bare short answer is taken verbatim as the product name.
	if normalized == "" || len(strings.Fields(normalized)) > 4 {
		return ""
	}
	return normalized
}

func quantityFromTurn(res intent.Result, rawText string) (int, bool) {
	if res.CreateOrder != nil && res.CreateOrder.Quantity > 0 {
		return res.CreateOrder.Quantity, true
	}
	for _, field := range strings.Fields(intent.Normalize(rawText)) {
		if quantity, err := strconv.Atoi(field); err == nil && quantity > 0 {
			return quantity, true
		}
	}
	return 0, false
}

func isAffirmative(normalized string) bool {
	switch normalized {
	case "oui", "yes", "ok", "okay", "confirme", "je confirme", "d accord", "daccord":
		return true
	}
	return false
}

func isNegative(normalized string) bool {
	switch normalized {
	case "non", "no", "annule", "annuler", "cancel", "stop":
		return true
	}
	return false
}

func statusLabel(status string) string {
	switch status {
	case order.StatusCreated:
		return "enregistrée"
	case order.StatusConfirmed:
		return "confirmée"
	case order.StatusShipped:
		return "expédiée"
	case order.StatusDelivered:
		return "livrée"
	case order.StatusCancelled:
		return "annulée"
	default:
		return status
	}
}

func formatEuros(cents int64) string {
	euros := cents / 100
	remainder := cents % 100
	if remainder < 0 {
		remainder = -remainder
	}
	return fmt.Sprintf("%d,%02d €", euros, remainder)
}
