package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/toolforge/pkg/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	reg, _ := newTestRegistryWithRoot(t)
	return reg
}

func newTestRegistryWithRoot(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	artifactRoot := filepath.Join(dir, "artifacts")
	reg, err := Open(filepath.Join(dir, "registry.db"), artifactRoot)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, artifactRoot
}

func TestRegister_DuplicateContentHashReturnsExisting(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := t.Context()

	data := ToolData{
		Name:              "calc_rsi",
		SourceText:        "def calc_rsi(prices):\n    return 50.0\n",
		Category:          domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
	}

	first, err := reg.Register(ctx, data)
	require.NoError(t, err)

	second, err := reg.Register(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestRegister_NewNameBumpsMinor(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := t.Context()

	first, err := reg.Register(ctx, ToolData{
		Name:              "calc_ma",
		SourceText:        "def calc_ma(prices): return 1.0\n",
		Category:          domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", first.SemanticVersion)

	second, err := reg.Register(ctx, ToolData{
		Name:              "calc_ma",
		SourceText:        "def calc_ma(prices): return 2.0\n",
		Category:          domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", second.SemanticVersion)
}

func TestRegister_PatchBumpsPatch(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := t.Context()

	base, err := reg.Register(ctx, ToolData{
		Name:              "calc_macd",
		SourceText:        "def calc_macd(prices): return {}\n",
		Category:          domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
	})
	require.NoError(t, err)

	patched, err := reg.Register(ctx, ToolData{
		Name:              "calc_macd",
		SourceText:        "def calc_macd(prices): return {'macd':0,'signal':0,'histogram':0}\n",
		Category:          domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
		PatchOf:           base.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.1.1", patched.SemanticVersion)
}

func TestFindBySchema_ExcludesFailedAndTiebreaksRecent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := t.Context()

	tool, err := reg.Register(ctx, ToolData{
		Name:              "calc_rsi",
		SourceText:        "def calc_rsi(prices): return 50.0\n",
		Category:          domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
	})
	require.NoError(t, err)
	require.NoError(t, reg.UpdateSchema(ctx, tool.ID, domain.SchemaTags{
		Category: domain.CategoryCalculation, Indicator: "rsi", DataType: "price",
	}))

	found, err := reg.FindBySchema(ctx, domain.CategoryCalculation, "rsi", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tool.ID, found.ID)
}

func TestGetByName_ReturnsNilWhenMissing(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := t.Context()
	tool, err := reg.GetByName(ctx, "does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, tool)
}

func TestSourceFileByteEqualsSourceText(t *testing.T) {
	reg, artifactRoot := newTestRegistryWithRoot(t)
	ctx := t.Context()
	src := "def calc_ma(prices): return 1.0\n"
	tool, err := reg.Register(ctx, ToolData{
		Name: "calc_ma", SourceText: src, Category: domain.CategoryCalculation,
		VerificationStage: domain.StageContractValid,
	})
	require.NoError(t, err)
	assert.Equal(t, src, tool.SourceText)
	assert.Len(t, tool.ContentHash, 8)

	onDisk, err := os.ReadFile(filepath.Join(artifactRoot, tool.FilePath))
	require.NoError(t, err)
	assert.Equal(t, src, string(onDisk))
}
