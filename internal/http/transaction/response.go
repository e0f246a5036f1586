package transaction

import (
	"time"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type transactionResponse struct {
	ID                  int64                 `json:"id"`
	Amount              int64                 `json:"amount"`
	Direction           transaction.Direction `json:"direction"`
	Date                time.Time             `json:"date"`
	CounterpartyINN     string                `json:"counterparty_inn,omitempty"`
	CounterpartyName    string                `json:"counterparty_name,omitempty"`
	BusinessOperation   string                `json:"business_operation,omitempty"`
	PaymentPurpose      string                `json:"payment_purpose,omitempty"`
	CategoryID          *int64                `json:"category_id,omitempty"`
	SuggestedCategoryID *int64                `json:"suggested_category_id,omitempty"`
	Confidence          *float64              `json:"confidence,omitempty"`
	CategorySource      transaction.Source    `json:"category_source,omitempty"`
	Status              transaction.Status    `json:"status"`
	LinkedExpenseID     *int64                `json:"linked_expense_id,omitempty"`
	LinkedAmount        int64                 `json:"linked_amount,omitempty"`
	Version             int64                 `json:"version"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           *time.Time            `json:"updated_at,omitempty"`
}

func toResponse(tx *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:                  tx.ID,
		Amount:              tx.Amount,
		Direction:           tx.Direction,
		Date:                tx.Date,
		CounterpartyINN:     tx.CounterpartyINN,
		CounterpartyName:    tx.CounterpartyName,
		BusinessOperation:   tx.BusinessOperation,
		PaymentPurpose:      tx.PaymentPurpose,
		CategoryID:          tx.CategoryID,
		SuggestedCategoryID: tx.SuggestedCategoryID,
		Confidence:          tx.Confidence,
		CategorySource:      tx.CategorySource,
		Status:              tx.Status,
		LinkedExpenseID:     tx.LinkedExpenseID,
		LinkedAmount:        tx.LinkedAmount,
		Version:             tx.Version,
		CreatedAt:           tx.CreatedAt,
		UpdatedAt:           tx.UpdatedAt,
	}
}

func toResponseList(txs []*transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}

type bulkResponse struct {
	UpdatedCount    int                         `json:"updated_count"`
	SkippedCount    int                         `json:"skipped_count"`
	Errors          []string                    `json:"errors"`
	ErrorsTruncated int                         `json:"errors_truncated,omitempty"`
	RuleSuggestions []categorize.RuleSuggestion `json:"rule_suggestions"`
	Incomplete      bool                        `json:"incomplete,omitempty"`
}

func toBulkResponse(res categorize.BulkResult) bulkResponse {
	resp := bulkResponse{
		UpdatedCount:    res.Updated,
		SkippedCount:    res.Skipped,
		Errors:          res.Errors,
		ErrorsTruncated: res.ErrorsTruncated,
		RuleSuggestions: res.RuleSuggestions,
	}

	if resp.Errors == nil {
		resp.Errors = []string{}
	}

	if resp.RuleSuggestions == nil {
		resp.RuleSuggestions = []categorize.RuleSuggestion{}
	}

	return resp
}
