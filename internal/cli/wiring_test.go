package cli

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkpay/internal/config"
	"thinkpay/internal/ledger/memory"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/oracle"
	"thinkpay/internal/services"
)

func quietLogger() *tplog.Logger {
	return tplog.New(tplog.Config{Output: io.Discard})
}

func TestOpenStatementSink(t *testing.T) {
	ctx := context.Background()

	sink, err := OpenStatementSink(ctx, &config.Config{StatementSink: "none"})
	require.NoError(t, err)
	assert.Nil(t, sink)

	_, err = OpenStatementSink(ctx, &config.Config{StatementSink: "ftp"})
	assert.ErrorContains(t, err, "unsupported statement sink")

	_, err = OpenStatementSink(ctx, &config.Config{StatementSink: "s3"})
	assert.ErrorContains(t, err, "bucket is required")
}

func TestOpenStatements_Disabled(t *testing.T) {
	svc, err := OpenStatements(context.Background(), quietLogger(), &config.Config{}, memory.New())
	require.NoError(t, err)
	assert.Nil(t, svc)
}

func TestOpenOracle_WithoutKeyUsesKeywords(t *testing.T) {
	o := OpenOracle(context.Background(), quietLogger(), &config.Config{})
	_, ok := o.(*oracle.Keywords)
	assert.True(t, ok)
}

func TestNewServices(t *testing.T) {
	store := memory.New()
	svc := NewServices(&config.Config{}, store, services.LogOutbox{}, oracle.Static{})

	require.NotNil(t, svc.Sessions)
	require.NotNil(t, svc.Processor)
	assert.Equal(t, 0, svc.Caches.Sweep())
}
