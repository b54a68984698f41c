package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpsertKeepsNewestPurchase(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore()

	assert.True(t, store.Upsert(Transaction{ID: "t1", ProductID: "p", PurchaseDate: base}))
	assert.True(t, store.Upsert(Transaction{ID: "t2", ProductID: "p", PurchaseDate: base.Add(time.Hour)}))
	assert.False(t, store.Upsert(Transaction{ID: "t0", ProductID: "p", PurchaseDate: base.Add(-time.Hour)}))

	tx, ok := store.Get("p")
	require.True(t, ok)
	assert.Equal(t, "t2", tx.ID)
	assert.Equal(t, 1, store.Len())
}

func TestStore_UpsertSamePurchaseDateReplaces(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore()

	store.Upsert(Transaction{ID: "t1", ProductID: "p", PurchaseDate: base})
	revoked := base.Add(time.Minute)
	assert.True(t, store.Upsert(Transaction{ID: "t1", ProductID: "p", PurchaseDate: base, RevocationDate: &revoked}))

	tx, _ := store.Get("p")
	assert.True(t, tx.IsRevoked())
}

func TestStore_AllSortedByProduct(t *testing.T) {
	store := NewStore()
	store.Upsert(Transaction{ID: "b", ProductID: "com.x.team.month"})
	store.Upsert(Transaction{ID: "a", ProductID: "com.x.plus.month"})

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "com.x.plus.month", all[0].ProductID)
	assert.Equal(t, "com.x.team.month", all[1].ProductID)
	assert.True(t, store.Contains("com.x.team.month"))
	assert.False(t, store.Contains("com.x.plus.year"))
}

func TestTransaction_EntitledAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, Transaction{}.EntitledAt(now))
	assert.True(t, Transaction{ExpirationDate: &future}.EntitledAt(now))
	assert.False(t, Transaction{ExpirationDate: &past}.EntitledAt(now))
	assert.False(t, Transaction{ExpirationDate: &future, RevocationDate: &past}.EntitledAt(now))
}

func TestBackendSubscriptionInfo_IsActive(t *testing.T) {
	var nilInfo *BackendSubscriptionInfo
	assert.False(t, nilInfo.IsActive())
	assert.False(t, NoSubscription().IsActive())
	assert.True(t, (&BackendSubscriptionInfo{Status: LedgerStatusActive}).IsActive())
}
