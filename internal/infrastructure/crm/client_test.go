package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

func TestUpsertContact_TagsAffiliate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/contacts/upsert", r.URL.Path)
		var body upsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "email", body.IDProperty)
		assert.Equal(t, "AFF123", body.Properties.AffiliateID)
		_, _ = w.Write([]byte(`{"id":"c-1"}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, "key").UpsertContact(context.Background(), domain.CRMContact{
		Email: "john@gmail.com", AffiliateID: "AFF123", CustomerID: "cus_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)
}
