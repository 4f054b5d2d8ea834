package mocks

import (
	"context"

	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/stretchr/testify/mock"
)

type Gateway struct {
	mock.Mock
}

func (g *Gateway) Verify(ctx context.Context, txnID string) (*payu.VerificationResult, error) {
	args := g.Called(ctx, txnID)
	result, _ := args.Get(0).(*payu.VerificationResult)
	return result, args.Error(1)
}
