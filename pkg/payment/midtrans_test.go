package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureMatchesGatewayFormula(t *testing.T) {
	sig := Signature("order-1", "200", "500000.00", "server-key")
	assert.Len(t, sig, 128)
	assert.Equal(t, sig, Signature("order-1", "200", "500000.00", "server-key"))
	assert.NotEqual(t, sig, Signature("order-1", "201", "500000.00", "server-key"))
}

func TestVerifySignature(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	good := Signature("order-1", "200", "500000.00", "server-key")

	assert.True(t, g.VerifySignature("order-1", "200", "500000.00", good))
	assert.False(t, g.VerifySignature("order-1", "200", "1.00", good))
	assert.False(t, NewMidtransGateway("", false).VerifySignature("order-1", "200", "500000.00", good))
}

func TestAmountMatches(t *testing.T) {
	assert.True(t, AmountMatches("500000.00", 500000))
	assert.True(t, AmountMatches("500000", 500000))
	assert.False(t, AmountMatches("1.00", 500000))
	assert.False(t, AmountMatches("500000.50", 500000))
	assert.False(t, AmountMatches("", 500000))
	assert.False(t, AmountMatches("abc", 500000))
}

func TestMapStatus(t *testing.T) {
	cases := map[string]struct {
		status string
		fraud  string
		want   Outcome
	}{
		"settlement":        {"settlement", "", OutcomePaid},
		"capture accepted":  {"capture", "accept", OutcomePaid},
		"capture challenge": {"capture", "challenge", OutcomePending},
		"deny":              {"deny", "", OutcomeFailed},
		"cancel":            {"cancel", "", OutcomeFailed},
		"expire":            {"expire", "", OutcomeExpired},
		"pending":           {"pending", "", OutcomePending},
		"refund":            {"refund", "", OutcomeUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapStatus(tc.status, tc.fraud))
		})
	}
}

func TestCreateTransactionRequiresKey(t *testing.T) {
	_, err := NewMidtransGateway("", false).CreateTransaction(context.Background(), Order{OrderID: "o", Amount: 1})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
