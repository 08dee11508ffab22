package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/renewkit/acme"
)

func openTestPool(t *testing.T) *sqlitex.Pool {
	t.Helper()
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate,
		PoolSize: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	conn, err := pool.Take(context.Background())
	require.NoError(t, err)
	defer pool.Put(conn)
	require.NoError(t, sqlitex.ExecScript(conn, Schema))

	return pool
}

func testTarget() acme.Target {
	return acme.Target{
		Host:             "example.com",
		AlternativeNames: []string{"www.example.com"},
		TargetPluginName: "static",
		ValidationPlugin: "webroot",
		ChallengeType:    "http-01",
	}
}

func TestStore_SaveAndFind(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)
	ctx := context.Background()

	sr := &acme.ScheduledRenewal{Target: testTarget(), InstallationPluginNames: []string{"null"}}
	result := acme.NewRenewResultSuccess(&acme.CertRecord{Thumbprint: "thumb-1"})

	require.NoError(t, store.Save(ctx, sr, result))
	require.False(t, sr.NextDue.IsZero(), "a successful save advances NextDue")

	found, err := store.Find(ctx, testTarget())
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, []string{"www.example.com"}, found.Target.AlternativeNames)
	require.Equal(t, []string{"null"}, found.InstallationPluginNames)
}

func TestStore_Find_Missing(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)

	found, err := store.Find(context.Background(), testTarget())
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestStore_SaveUpsertsSameIdentity(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)
	ctx := context.Background()

	sr := &acme.ScheduledRenewal{Target: testTarget()}
	require.NoError(t, store.Save(ctx, sr, acme.NewRenewResultSuccess(nil)))

	sr2 := &acme.ScheduledRenewal{Target: testTarget(), ScriptPath: "/usr/local/bin/notify.sh"}
	require.NoError(t, store.Save(ctx, sr2, acme.NewRenewResultSuccess(nil)))

	rows, err := store.Renewals(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1, "same identity upserts rather than duplicating")
	require.Equal(t, "/usr/local/bin/notify.sh", rows[0].ScriptPath)
}

func TestStore_Cancel(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)
	ctx := context.Background()

	sr := &acme.ScheduledRenewal{Target: testTarget()}
	require.NoError(t, store.Save(ctx, sr, acme.NewRenewResultSuccess(nil)))

	require.NoError(t, store.Cancel(ctx, testTarget()))

	found, err := store.Find(ctx, testTarget())
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestStore_RenewalsOrderedByNextDue(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)
	ctx := context.Background()

	later := testTarget()
	later.Host = "later.example.com"
	sooner := testTarget()
	sooner.Host = "sooner.example.com"

	now := time.Now()
	require.NoError(t, store.Save(ctx, &acme.ScheduledRenewal{Target: later, NextDue: now.Add(48 * time.Hour)}, acme.RenewResult{}))
	require.NoError(t, store.Save(ctx, &acme.ScheduledRenewal{Target: sooner, NextDue: now.Add(1 * time.Hour)}, acme.RenewResult{}))

	rows, err := store.Renewals(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "sooner.example.com", rows[0].Target.Host)
	require.Equal(t, "later.example.com", rows[1].Target.Host)
}
