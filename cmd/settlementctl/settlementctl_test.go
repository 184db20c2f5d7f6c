package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/auth"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SETTLEMENT_APP_ENV", "dev")
	t.Setenv("SETTLEMENT_JWT_SECRET", "ctl-secret")
	t.Setenv("SETTLEMENT_JWT_ISSUER", "settlement-engine")
	t.Setenv("SETTLEMENT_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenMintProducesParsableToken(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SETTLEMENT_DB_DSN", "postgres://unused")

	out, err := run(t, "token", "mint", "--subject", "cust_42", "--role", "customer")
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(config.JWTConfig{Secret: "ctl-secret", Issuer: "settlement-engine"}, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, enums.ActorRoleCustomer, claims.Role)
	assert.Equal(t, "cust_42", claims.CustomerID())
	assert.NotEmpty(t, claims.ID)
}

func TestTokenMintRejectsUnknownRole(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SETTLEMENT_DB_DSN", "postgres://unused")

	_, err := run(t, "token", "mint", "--subject", "ops", "--role", "root")
	require.Error(t, err)
}

func TestNumberNextAllocatesFromSQLite(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SETTLEMENT_AUTO_MIGRATE", "true")
	t.Setenv("SETTLEMENT_DB_DRIVER", "sqlite")
	t.Setenv("SETTLEMENT_DB_DSN", "file:ctl_number_next?mode=memory&cache=shared&_busy_timeout=5000")
	t.Setenv("SETTLEMENT_DOCUMENTS_LOCAL_DIR", t.TempDir())
	t.Setenv("SETTLEMENT_VAT_ENABLED", "false")

	out, err := run(t, "number", "next", "--type", "proforma", "--year", "2026")
	require.NoError(t, err)
	assert.Equal(t, "ZF2026-0001", strings.TrimSpace(out))
}

func TestNumberNextRequiresValidType(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SETTLEMENT_DB_DSN", "postgres://unused")

	_, err := run(t, "number", "next", "--type", "receipt")
	require.Error(t, err)
}

func TestConfigErrorsSurface(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SETTLEMENT_DB_DSN", "postgres://unused")
	require.NoError(t, os.Unsetenv("SETTLEMENT_JWT_SECRET"))

	_, err := run(t, "token", "mint", "--subject", "ops")
	require.Error(t, err)
}
