package escalation_test

import (
	"testing"

	"discord-automod/internal/engine/escalation"
	"discord-automod/internal/engine/escalation/markertest"
)

func TestMemMarkersContract(t *testing.T) {
	markertest.Run(t, escalation.NewMemMarkers(), "g1")
}
