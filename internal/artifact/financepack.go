package artifact

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/settld/core/pkg/canonicaljson"
)

// deterministicModTime is the fixed mtime every zip entry carries, so the
// same inputs always produce byte-identical zip bytes regardless of when
// the bundle was assembled.
var deterministicModTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// GLBatchEntry is one general-ledger posting line in a GLBatch.v1 export.
type GLBatchEntry struct {
	Account     string `json:"account"`
	DebitCents  int64  `json:"debitCents"`
	CreditCents int64  `json:"creditCents"`
	Memo        string `json:"memo"`
}

// GLBatch is the GLBatch.v1 document: every ledger posting for a closed
// accounting period, in deterministic account order.
type GLBatch struct {
	Month   string         `json:"month"`
	Basis   string         `json:"basis"`
	Entries []GLBatchEntry `json:"entries"`
}

// PartyStatement summarizes one counterparty's settled activity for the
// period.
type PartyStatement struct {
	PartyID          string `json:"partyId"`
	PartyType        string `json:"partyType"` // customer|agent|operator
	ReleasedCents    int64  `json:"releasedCents"`
	RefundedCents    int64  `json:"refundedCents"`
	HeldExposureCents int64 `json:"heldExposureCents"`
}

// MonthlyStatement is the top-level Month Close document.
type MonthlyStatement struct {
	Month           string           `json:"month"`
	Basis           string           `json:"basis"`
	ClosedAt        time.Time        `json:"closedAt"`
	PartyStatements []PartyStatement `json:"partyStatements"`
	GLBatch         GLBatch          `json:"glBatch"`
}

// BuildMonthlyStatement sorts entries/statements into deterministic order
// and computes the resulting hash, matching the canonicalJson ordering
// rules used everywhere else in settld.
func BuildMonthlyStatement(month, basis string, closedAt time.Time, parties []PartyStatement, gl GLBatch) (MonthlyStatement, string, error) {
	sort.Slice(parties, func(i, j int) bool { return parties[i].PartyID < parties[j].PartyID })
	sort.Slice(gl.Entries, func(i, j int) bool { return gl.Entries[i].Account < gl.Entries[j].Account })

	stmt := MonthlyStatement{
		Month:           month,
		Basis:           basis,
		ClosedAt:        closedAt,
		PartyStatements: parties,
		GLBatch:         gl,
	}

	canon, err := canonicaljson.Marshal(stmt)
	if err != nil {
		return MonthlyStatement{}, "", fmt.Errorf("artifact: canonicalize monthly statement: %w", err)
	}

	hash, err := Hash(Body{SchemaVersion: "MonthlyStatement.v1", Payload: map[string]any{"canonical": string(canon)}})
	if err != nil {
		return MonthlyStatement{}, "", err
	}

	return stmt, hash, nil
}

// JournalCSV renders GLBatch entries as JournalCsv.v1: account, debit,
// credit, memo — one row per entry, header first, sorted by account.
func JournalCSV(gl GLBatch) ([]byte, error) {
	sort.Slice(gl.Entries, func(i, j int) bool { return gl.Entries[i].Account < gl.Entries[j].Account })

	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"account", "debitCents", "creditCents", "memo"}); err != nil {
		return nil, err
	}

	for _, e := range gl.Entries {
		row := []string{e.Account, fmt.Sprintf("%d", e.DebitCents), fmt.Sprintf("%d", e.CreditCents), e.Memo}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// zipEntry is one named file to add to a deterministic zip bundle.
type zipEntry struct {
	Name string
	Data []byte
}

// BuildFinancePackZip assembles FinancePackBundle.v1: the monthly statement
// JSON, JournalCsv.v1, and the GLBatch JSON, in a zip with fixed entry
// order and fixed mtimes (the extended-timestamp extra field archive/zip
// writes for Modified carries the same fixed time) — so the same inputs
// always produce byte-identical zip bytes.
func BuildFinancePackZip(stmt MonthlyStatement, journalCSV []byte) ([]byte, error) {
	stmtJSON, err := canonicaljson.Marshal(stmt)
	if err != nil {
		return nil, fmt.Errorf("artifact: canonicalize statement for zip: %w", err)
	}

	glJSON, err := canonicaljson.Marshal(stmt.GLBatch)
	if err != nil {
		return nil, fmt.Errorf("artifact: canonicalize glbatch for zip: %w", err)
	}

	entries := []zipEntry{
		{Name: "monthly_statement.json", Data: stmtJSON},
		{Name: "journal.csv", Data: journalCSV},
		{Name: "glbatch.json", Data: glJSON},
	}

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, entry := range entries {
		hdr := &zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: deterministicModTime,
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}

		if _, err := w.Write(entry.Data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
