// Package catalog defines the ordered, immutable list of scenes a player cycles through.
//
// A catalog is loaded once at startup from YAML and never changes for the
// lifetime of the process. Loading normalises the input:
//
//   - Scenes without an id receive "scene-NN" (1-based ordinal)
//   - Non-positive content durations become DefaultContentDurationMs
//   - Non-positive intro durations become DefaultIntroDurationMs
//   - Empty content kinds become KindStatic
//
// Every substitution is returned as an Adjustment so the caller can log it.
// An empty catalog, duplicate ids, and unknown kinds are fatal.
//
// # File Format
//
//	scenes:
//	  - id: dashboard
//	    title: "O2O Command Centre"
//	    duration_ms: 15000
//	    intro:
//	      title: "O2O Command Centre"
//	      role: "Operations Director"
//	      goal: "Review the business and decide"
//	      duration_ms: 1000
//	    content:
//	      kind: scripted
//	      source: "/scenes/dashboard/"
//	      timeline:
//	        showPrompt: 2000
//	        finish: 14000
//
// # Usage
//
//	cat, adjustments, err := catalog.Load("configs/scenes.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, adj := range adjustments {
//	    logger.Warn("catalog adjusted", "detail", adj.String())
//	}
package catalog
