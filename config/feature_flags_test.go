package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	flags := LoadFeatureFlags()

	assert.True(t, flags.IsEnabled(FeatureSagaViewCache, nil))
	assert.True(t, flags.IsEnabled(FeatureSagaEagerInit, nil))
	assert.True(t, flags.IsEnabled(FeatureXPSweep, nil))
	assert.False(t, flags.IsEnabled(FeatureExperimentalAnalytics, nil))
	assert.False(t, flags.IsEnabled("unknown.feature", nil))
}

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	t.Setenv("FEATURE_SAGA_VIEW_CACHE", "false")
	t.Setenv("FEATURE_EXPERIMENTAL_ANALYTICS", "true")

	flags := LoadFeatureFlags()

	assert.False(t, flags.IsEnabled(FeatureSagaViewCache, nil))
	assert.True(t, flags.IsEnabled(FeatureExperimentalAnalytics, nil))
}

func TestFeatureFlags_EnvPercentRollout(t *testing.T) {
	t.Setenv("FEATURE_SAGA_EAGER_INIT", "50")

	flags := LoadFeatureFlags()
	features := flags.GetAllFeatures()

	require.Contains(t, features, FeatureSagaEagerInit)
	assert.Equal(t, 50, features[FeatureSagaEagerInit].RolloutPercent)
	assert.True(t, features[FeatureSagaEagerInit].Enabled)
}

func TestFeatureFlags_RolloutIsConsistentPerLearner(t *testing.T) {
	flags := LoadFeatureFlags()
	require.NoError(t, flags.SetRolloutPercent(FeatureSagaPersonalized, 50))

	ctx := &FeatureContext{LearnerID: "learner1"}
	first := flags.IsEnabled(FeatureSagaPersonalized, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, flags.IsEnabled(FeatureSagaPersonalized, ctx))
	}
}

func TestFeatureFlags_RolloutBounds(t *testing.T) {
	flags := LoadFeatureFlags()

	require.NoError(t, flags.SetRolloutPercent(FeatureSagaPersonalized, 0))
	assert.False(t, flags.IsEnabled(FeatureSagaPersonalized, &FeatureContext{LearnerID: "learner1"}))

	require.NoError(t, flags.SetRolloutPercent(FeatureSagaPersonalized, 100))
	assert.True(t, flags.IsEnabled(FeatureSagaPersonalized, &FeatureContext{LearnerID: "learner1"}))

	assert.Error(t, flags.SetRolloutPercent(FeatureSagaPersonalized, 150))
	assert.Error(t, flags.SetRolloutPercent("unknown.feature", 50))
}

func TestFeatureFlags_LearnerOverrideWinsOverRollout(t *testing.T) {
	flags := LoadFeatureFlags()
	require.NoError(t, flags.DisableFeature(FeatureSagaViewCache))

	ctx := &FeatureContext{LearnerID: "learner1"}
	assert.False(t, flags.IsEnabled(FeatureSagaViewCache, ctx))

	flags.SetLearnerOverride("learner1", FeatureSagaViewCache, true)
	assert.True(t, flags.IsEnabled(FeatureSagaViewCache, ctx))
	assert.False(t, flags.IsEnabled(FeatureSagaViewCache, &FeatureContext{LearnerID: "learner2"}))

	flags.ClearLearnerOverrides("learner1")
	assert.False(t, flags.IsEnabled(FeatureSagaViewCache, ctx))
}

func TestFeatureFlags_AdminSeesEverything(t *testing.T) {
	flags := LoadFeatureFlags()

	ctx := &FeatureContext{LearnerID: "admin1", IsAdmin: true}
	assert.True(t, flags.IsEnabled(FeatureExperimentalAnalytics, ctx))
}

func TestFeatureFlags_EnableDisable(t *testing.T) {
	flags := LoadFeatureFlags()

	require.NoError(t, flags.EnableFeature(FeatureExperimentalAnalytics))
	assert.True(t, flags.IsEnabled(FeatureExperimentalAnalytics, nil))

	require.NoError(t, flags.DisableFeature(FeatureExperimentalAnalytics))
	assert.False(t, flags.IsEnabled(FeatureExperimentalAnalytics, nil))

	assert.Error(t, flags.EnableFeature("unknown.feature"))
}
