// Package publish pushes validation results to the hosted record store
// reviewers triage exceptions in.
package publish

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/resilience"
	"github.com/sells-group/contract-validator/pkg/notion"
)

// Publisher receives every persisted validation run.
type Publisher interface {
	Publish(ctx context.Context, run *model.ValidationRun) error
}

// NopPublisher discards runs. It is used when no record store is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *model.ValidationRun) error { return nil }

// New returns a NotionPublisher when Notion is configured and a NopPublisher
// otherwise.
func New(cfg config.NotionConfig, retry resilience.RetryConfig) Publisher {
	if !cfg.Enabled() {
		return NopPublisher{}
	}
	client := notion.NewClient(cfg.Token, notion.WithRateLimit(cfg.RateLimit), notion.WithRetry(retry))
	return NewNotionPublisher(client, cfg.ExceptionsDB, cfg.ValidationsDB)
}

// NotionPublisher writes one page per exception to the exceptions database
// and one summary page per run to the validations database. Republishing a
// run updates its pages in place and leaves reviewer-owned fields alone.
type NotionPublisher struct {
	client        notion.Client
	exceptionsDB  string
	validationsDB string
}

// NewNotionPublisher creates a NotionPublisher.
func NewNotionPublisher(client notion.Client, exceptionsDB, validationsDB string) *NotionPublisher {
	return &NotionPublisher{client: client, exceptionsDB: exceptionsDB, validationsDB: validationsDB}
}

// Publish implements Publisher.
func (p *NotionPublisher) Publish(ctx context.Context, run *model.ValidationRun) error {
	log := zap.L().With(zap.String("validation_id", run.ID), zap.String("invoice_id", run.InvoiceID))

	findings := make([]model.ValidationException, 0, len(run.Result.Exceptions)+len(run.Result.Notices))
	findings = append(findings, run.Result.Exceptions...)
	findings = append(findings, run.Result.Notices...)

	pages, err := p.exceptionPages(ctx, run.ID)
	if err != nil {
		return err
	}

	for _, ex := range findings {
		props := ExceptionProperties(run, ex)
		if pageID, ok := pages[ex.ID]; ok {
			delete(props, "Resolved")
			_, err = p.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
		} else {
			_, err = p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
				Parent:     databaseParent(p.exceptionsDB),
				Properties: props,
			})
		}
		if err != nil {
			return eris.Wrapf(err, "publish: exception %s", ex.ID)
		}
	}

	props := ValidationProperties(run)
	existing, err := notion.FindByText(ctx, p.client, p.validationsDB, "Validation ID", run.ID)
	if err != nil {
		return eris.Wrap(err, "publish: look up validation page")
	}
	if existing != nil {
		if _, err := p.client.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return eris.Wrap(err, "publish: update validation page")
		}
	} else {
		if _, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent:     databaseParent(p.validationsDB),
			Properties: props,
		}); err != nil {
			return eris.Wrap(err, "publish: create validation page")
		}
	}

	log.Info("publish: validation published", zap.Int("exceptions", len(findings)), zap.Bool("updated", existing != nil))
	return nil
}

// exceptionPages maps Exception ID to page ID for the run's existing rows.
func (p *NotionPublisher) exceptionPages(ctx context.Context, validationID string) (map[string]string, error) {
	rows, err := notion.QueryAll(ctx, p.client, p.exceptionsDB, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Validation ID",
			RichText: &notionapi.TextFilterCondition{Equals: validationID},
		},
		PageSize: 100,
	})
	if err != nil {
		return nil, eris.Wrap(err, "publish: list exception pages")
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if id := notion.PlainText(row.Properties["Exception ID"]); id != "" {
			out[id] = string(row.ID)
		}
	}
	return out, nil
}

func databaseParent(id string) notionapi.Parent {
	return notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(id)}
}

// ExceptionProperties maps one finding to an exceptions database row.
func ExceptionProperties(run *model.ValidationRun, ex model.ValidationException) notionapi.Properties {
	expected := "N/A"
	if ex.ContractTerm != nil {
		expected = money(ex.ContractTerm.UnitPrice)
	}
	return notionapi.Properties{
		"Validation Exception": notion.Title(fmt.Sprintf("%s: %s", ex.Type, ex.Description)),
		"Exception ID":         notion.Text(ex.ID),
		"Validation ID":        notion.Text(run.ID),
		"Invoice ID":           notion.Text(run.InvoiceID),
		"Vendor":               notion.Text(run.VendorName),
		"Exception Type":       notion.Select(ex.Type.Label()),
		"Category":             notion.Select(ex.Type.Category()),
		"Severity":             notion.Select(string(ex.Severity)),
		"Item":                 notion.Text(ex.LineItem.Description),
		"Expected Value":       notion.Text(expected),
		"Actual Value":         notion.Text(money(ex.LineItem.UnitPrice)),
		"Variance":             notion.Number(ex.Variance),
		"Recommendation":       notion.Text(ex.Type.Recommendation()),
		"Resolved":             notion.Checkbox(false),
	}
}

// ValidationProperties maps a run to a validations database row.
func ValidationProperties(run *model.ValidationRun) notionapi.Properties {
	r := &run.Result
	return notionapi.Properties{
		"Validation":           notion.Title(fmt.Sprintf("%s vs %s", run.InvoiceID, run.ContractID)),
		"Validation ID":        notion.Text(run.ID),
		"Invoice ID":           notion.Text(run.InvoiceID),
		"Contract ID":          notion.Text(run.ContractID),
		"Vendor":               notion.Text(run.VendorName),
		"Overall Status":       notion.Select(statusLabel(run.Status)),
		"Confidence":           notion.Number(r.Confidence),
		"Variance Amount":      notion.Number(r.TotalVariance),
		"Potential Savings":    notion.Number(r.PotentialSavings),
		"Rules Applied":        notion.Number(float64(len(r.Exceptions))),
		"Total Line Items":     notion.Number(float64(r.TotalLineItems)),
		"Compliant Line Items": notion.Number(float64(r.CompliantLineItems)),
		"Validation Date":      notion.DateOf(run.CreatedAt),
	}
}

func statusLabel(s model.ValidationStatus) string {
	if s == model.ValidationApproved {
		return "Approved"
	}
	return "Under Review"
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
