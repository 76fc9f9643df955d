package apiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savemate/ledgersync/internal/domain/challenge"
)

func TestNormalizePageBareArray(t *testing.T) {
	pg, err := normalizePage([]byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, pg.Info.Total)
	assert.Equal(t, 1, pg.Info.Page)

	items, err := pageOf[challenge.Challenge](pg)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
}

func TestNormalizePageDataEnvelope(t *testing.T) {
	body := []byte(`{"data":[{"id":"a"}],"meta":{"total":41,"page":3,"limit":20}}`)
	pg, err := normalizePage(body)
	require.NoError(t, err)
	assert.Equal(t, PageInfo{Total: 41, Page: 3, Limit: 20}, pg.Info)

	items, err := pageOf[challenge.Challenge](pg)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestNormalizePageEnvelopeWithoutMeta(t *testing.T) {
	pg, err := normalizePage([]byte(`{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 3, pg.Info.Total)
	assert.Equal(t, 1, pg.Info.Page)
}

func TestNormalizePageRejectsUnknownShapes(t *testing.T) {
	for _, body := range []string{
		`{"items":[1,2,3]}`,
		`{"data":"not an array"}`,
		`42`,
		`not json at all`,
	} {
		_, err := normalizePage([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestPageOfEmpty(t *testing.T) {
	pg, err := normalizePage([]byte(`[]`))
	require.NoError(t, err)
	items, err := pageOf[challenge.Challenge](pg)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}
