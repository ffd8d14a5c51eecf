package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susubank/susubank/internal/money"
)

func TestLoggerNotifierWritesLoanReference(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Send(context.Background(), Message{
		Kind:        KindLoanDefaulted,
		RecipientID: "user-1",
		LoanID:      "loan-1",
		LoanNumber:  "LOAN123456789012",
		LoanStatus:  "defaulted",
		Outstanding: money.MustParse("40.5"),
		Body:        "Your loan is in default",
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "loan_defaulted", line["kind"])
	assert.Equal(t, "user-1", line["recipient_id"])
	loan := line["loan"].(map[string]any)
	assert.Equal(t, "LOAN123456789012", loan["number"])
	assert.Equal(t, "defaulted", loan["status"])
	assert.Equal(t, "40.50", loan["outstanding"])
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{}))
	assert.NoError(t, NewLoggerNotifier(nil).Send(context.Background(), Message{}))
}
