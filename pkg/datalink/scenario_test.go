package datalink

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioFixtures replays every YAML fixture under testdata/ against a
// fresh network/user pair, the same S1-S6 sequences TestScenario* above
// exercise as Go literals. Fixtures exist so a reviewer can add or tweak a
// scenario without touching Go, per SPEC_FULL.md's scenario-fixture section.
func TestScenarioFixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths, "expected at least one scenario fixture")

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := loadScenario(path)
			require.NoError(t, err)

			net, usr := newPair(t)
			runner := newScenarioRunner(net, usr)
			require.NoError(t, runner.run(s))

			for actor, want := range s.ExpectState {
				got := stateName(runner.side(actor).State())
				assert.Equal(t, want, got, "actor %q final state", actor)
			}
		})
	}
}
