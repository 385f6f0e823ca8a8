package erp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryLoadsBuiltinOperations(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	ops := reg.List()
	require.NotEmpty(t, ops)

	// List is sorted by name.
	for i := 1; i < len(ops); i++ {
		assert.Less(t, ops[i-1].Name, ops[i].Name)
	}

	for _, name := range []string{
		"stok_listele", "cari_listele", "depo_listele", "seri_lot_listele",
		"barkod_listele", "doviz_listele", "kasa_listele", "banka_listele",
		"personel_listele", "siparis_listele", "fatura_listele",
		"stok_hareketleri_listele", "dekont_listele",
		"stok_olustur", "cari_olustur",
	} {
		_, err := reg.Get(name)
		assert.NoError(t, err, "operation %s should be defined", name)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Get("stok_sil")
	assert.ErrorContains(t, err, "unknown operation")
}

func TestListOperationBuildsQueryRequest(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	op, err := reg.Get("stok_listele")
	require.NoError(t, err)

	req, err := op.BuildRequest(map[string]string{
		"EsnekAramaKisiti": "vida",
		"Sayfa":            "2",
	}, "secret-token")
	require.NoError(t, err)

	assert.Equal(t, "/api/Stok", req.Endpoint)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "vida", req.Query.Get("EsnekAramaKisiti"))
	assert.Equal(t, "2", req.Query.Get("Sayfa"))
	assert.Nil(t, req.Body)
	assert.Equal(t, "secret-token", req.Secret)
}

func TestCreateOperationRequiresFields(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	op, err := reg.Get("stok_olustur")
	require.NoError(t, err)

	_, err = op.BuildRequest(map[string]string{"StokKodu": "STK-1"}, "secret-token")
	assert.ErrorContains(t, err, "StokAdi")
}

func TestCreateOperationAppliesDefaultsAndMirrors(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	op, err := reg.Get("stok_olustur")
	require.NoError(t, err)

	req, err := op.BuildRequest(map[string]string{
		"StokKodu": "STK-1",
		"StokAdi":  "Vida 3mm",
	}, "secret-token")
	require.NoError(t, err)

	// New-record marker travels as a query parameter.
	assert.Equal(t, "1", req.Query.Get("KayitTipi"))

	body, ok := req.Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "STK-1", body["StokKodu"])
	assert.Equal(t, "Vida 3mm", body["StokAdi"])
	// Short code/name mirror the full ones when not supplied.
	assert.Equal(t, "STK-1", body["StokKisaKodu"])
	assert.Equal(t, "Vida 3mm", body["StokKisaAdi"])
	// Conventional defaults.
	assert.Equal(t, -1, body["StokID"])
	assert.Equal(t, "105001", body["TipID"])
	assert.Equal(t, true, body["Durum"])
}

func TestCreateOperationCallerOverridesDefaults(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	op, err := reg.Get("cari_olustur")
	require.NoError(t, err)

	req, err := op.BuildRequest(map[string]string{
		"CariKodu": "CR-9",
		"CariAdi":  "Acme Ltd",
		"TipID":    "2002",
	}, "secret-token")
	require.NoError(t, err)

	body, ok := req.Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2002", body["TipID"])
	assert.Equal(t, -1, body["CariID"])
}
