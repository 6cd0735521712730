package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProfiles = `
platforms:
  zhihu:
    display_name: 知乎
    target_audience: [科技爱好者, 职场人士]
    content_preferences: [深度分析, 人工智能]
    style: 深度专业
    best_post_times: ["08:00", "21:30"]
    optimal_length: {min: 1500, max: 5000}
    domain_focus:
      primary: [科技]
      secondary: [财经]
      avoid: [娱乐]
    scoring_weights:
      content_match: 0.4
      audience_relevance: 0.2
      timeliness: 0.2
      engagement_potential: 0.2
  weibo:
    style: 简洁快讯
    acceptance_threshold: 0.5
    scoring_weights:
      content_match: 0.2
      audience_relevance: 0.2
      timeliness: 0.35
      engagement_potential: 0.25
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ==========================
// Parsing & Validation
// ==========================

func TestParse_Valid(t *testing.T) {
	snap, err := Parse([]byte(validProfiles), "inline")
	require.NoError(t, err)

	assert.Equal(t, []string{"weibo", "zhihu"}, snap.Names())
	assert.Equal(t, 2, snap.Len())

	zhihu, ok := snap.Get("zhihu")
	require.True(t, ok)
	assert.Equal(t, "zhihu", zhihu.Name)
	assert.Equal(t, "知乎", zhihu.DisplayName)
	assert.Equal(t, []string{"娱乐"}, zhihu.DomainFocus.Avoid)
	assert.Equal(t, 5000, zhihu.OptimalLength.Max)
	assert.InDelta(t, 0.4, zhihu.ScoringWeights.ContentMatch, 1e-12)

	weibo, _ := snap.Get("weibo")
	assert.InDelta(t, 0.5, weibo.AcceptanceThreshold, 1e-12)
}

func TestParse_RejectsWholeFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty document", ""},
		{"not yaml", "platforms: [unterminated"},
		{"no platforms", "platforms: {}"},
		{
			name: "weights do not sum to one",
			content: `
platforms:
  good:
    scoring_weights: {content_match: 0.25, audience_relevance: 0.25, timeliness: 0.25, engagement_potential: 0.25}
  bad:
    scoring_weights: {content_match: 0.5, audience_relevance: 0.3, timeliness: 0.2, engagement_potential: 0.1}
`,
		},
		{
			name: "negative weight",
			content: `
platforms:
  bad:
    scoring_weights: {content_match: 1.2, audience_relevance: -0.2, timeliness: 0, engagement_potential: 0}
`,
		},
		{
			name: "missing weight",
			content: `
platforms:
  bad:
    scoring_weights: {content_match: 0.5, audience_relevance: 0.5, timeliness: 0}
`,
		},
		{
			name: "wrong list type",
			content: `
platforms:
  bad:
    target_audience: 学生
    scoring_weights: {content_match: 0.25, audience_relevance: 0.25, timeliness: 0.25, engagement_potential: 0.25}
`,
		},
		{
			name: "bad post time",
			content: `
platforms:
  bad:
    best_post_times: ["25:00"]
    scoring_weights: {content_match: 0.25, audience_relevance: 0.25, timeliness: 0.25, engagement_potential: 0.25}
`,
		},
		{
			name: "name does not match key",
			content: `
platforms:
  bad:
    name: other
    scoring_weights: {content_match: 0.25, audience_relevance: 0.25, timeliness: 0.25, engagement_potential: 0.25}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Parse([]byte(tt.content), "inline")
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
		})
	}
}

func TestParse_WeightTolerance(t *testing.T) {
	content := `
platforms:
  p:
    scoring_weights: {content_match: 0.3333333, audience_relevance: 0.3333333, timeliness: 0.3333334, engagement_potential: 0}
`
	_, err := Parse([]byte(content), "inline")
	assert.NoError(t, err)
}

func TestSnapshot_Resolve(t *testing.T) {
	snap, err := Parse([]byte(validProfiles), "inline")
	require.NoError(t, err)

	all, err := snap.Resolve(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := snap.Resolve([]string{"zhihu", "zhihu"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "zhihu", some[0].Name)

	_, err = snap.Resolve([]string{"zhihu", "tiktok"})
	assert.Equal(t, errors.ErrCodeUnknownPlatform, errors.CodeOf(err))
}

// ==========================
// Store
// ==========================

func TestStore_ReloadSwapsOnlyValidFiles(t *testing.T) {
	path := writeFile(t, validProfiles)
	store, err := NewStore(path, logger.NewTestLogger(t))
	require.NoError(t, err)

	first := store.Snapshot()
	assert.Equal(t, int64(1), first.Version())

	// invalid edit: previous snapshot stays
	require.NoError(t, os.WriteFile(path, []byte("platforms: {}"), 0o644))
	err = store.Reload()
	require.Error(t, err)
	assert.Same(t, first, store.Snapshot())

	// valid edit
	updated := validProfiles + `
  douyin:
    style: 情感共鸣
    scoring_weights: {content_match: 0.2, audience_relevance: 0.2, timeliness: 0.2, engagement_potential: 0.4}
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, store.Reload())

	second := store.Snapshot()
	assert.Equal(t, int64(2), second.Version())
	assert.Equal(t, []string{"douyin", "weibo", "zhihu"}, second.Names())

	// a snapshot taken earlier is unaffected
	assert.Equal(t, []string{"weibo", "zhihu"}, first.Names())
}

func TestNewStore_InvalidFileIsFatal(t *testing.T) {
	path := writeFile(t, "platforms: {}")
	_, err := NewStore(path, logger.NewNoOpLogger())
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	_, err = NewStore(filepath.Join(t.TempDir(), "missing.yaml"), logger.NewNoOpLogger())
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
}

func TestStaticStore(t *testing.T) {
	snap, err := Parse([]byte(validProfiles), "inline")
	require.NoError(t, err)

	store := NewStaticStore(snap, logger.NewNoOpLogger())
	assert.NoError(t, store.Reload())
	store.Watch()
	assert.Same(t, snap, store.Snapshot())
	assert.Equal(t, int64(1), store.Snapshot().Version())
}
