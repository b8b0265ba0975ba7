package refdata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tongjisync/internal/geo"
)

func openSeeded(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := Open("file:"+filepath.Join(t.TempDir(), "data.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))

	stmts := []string{
		`INSERT INTO province VALUES ('44', '广东省'), ('33', '浙江省'), ('46', '海南省')`,
		`INSERT INTO city VALUES ('4403', '深圳市', '44'), ('4401', '广州市', '44'), ('3301', '杭州市', '33'), ('3302', '宁波市', '33')`,
		`INSERT INTO area VALUES ('469001', '五指山市', NULL, '46'), ('469002', '琼海市', NULL, '46')`,
		`INSERT INTO source_category VALUES ('baidu.com', 'search'), ('weibo', 'social')`,
	}
	for _, s := range stmts {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err)
	}
	return db
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "libsql", DriverFor("libsql://ref-db.turso.io?authToken=x"))
	assert.Equal(t, "sqlite3", DriverFor("file:data/data.db?mode=ro"))
	assert.Equal(t, "sqlite3", DriverFor("data.db"))
}

func TestDivisions(t *testing.T) {
	ctx := context.Background()
	db := openSeeded(t)

	rows, err := db.CitiesLike(ctx, "深圳")
	require.NoError(t, err)
	assert.Equal(t, []geo.Division{{Name: "深圳市", Code: "4403"}}, rows)

	rows, err = db.CitiesLike(ctx, "州")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = db.AreasLike(ctx, "琼海")
	require.NoError(t, err)
	assert.Equal(t, []geo.Division{{Name: "琼海市", Code: "469002"}}, rows)

	name, ok, err := db.ProvinceName(ctx, "44")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "广东省", name)

	_, ok, err = db.ProvinceName(ctx, "99")
	require.NoError(t, err)
	assert.False(t, ok)

	name, ok, err = db.CityName(ctx, "3302")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "宁波市", name)

	name, ok, err = db.AreaInProvince(ctx, "五指山", "46")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "五指山市", name)
}

func TestCategory_Memoised(t *testing.T) {
	ctx := context.Background()
	db := openSeeded(t)

	cat, ok, err := db.Category(ctx, "baidu.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "search", cat)

	_, ok, err = db.Category(ctx, "unknown.org")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.ExecContext(ctx, `DELETE FROM source_category`)
	require.NoError(t, err)

	cat, ok, err = db.Category(ctx, "baidu.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "search", cat)
}
