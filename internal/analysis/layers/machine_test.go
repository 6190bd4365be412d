package layers

import (
	"testing"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

func TestAdvanceForwardProgression(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")

	out := Advance(sess, reflection.LayerTrigger, "the email from my manager")
	if out.Layer != reflection.LayerTrigger {
		t.Fatalf("expected trigger layer, got %s", out.Layer)
	}
	if out.IsCompleted || out.Inconsistent {
		t.Fatalf("unexpected flags: %+v", out)
	}
	if out.Insights[reflection.LayerTrigger] != "the email from my manager" {
		t.Fatalf("insight not recorded: %v", out.Insights)
	}
}

func TestAdvanceSkippingLayersIsAllowed(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")

	out := Advance(sess, reflection.LayerEmotion, "shame underneath the anger")
	if out.Layer != reflection.LayerEmotion {
		t.Fatalf("expected emotion layer, got %s", out.Layer)
	}
}

func TestAdvanceCoreBeliefWithInsightCompletes(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerEmotion

	out := Advance(sess, reflection.LayerCoreBelief, "I am only worth what I produce")
	if !out.IsCompleted {
		t.Fatal("expected completion when core belief is reported with an insight")
	}
	if !out.CoreBeliefNew {
		t.Fatal("expected CoreBeliefNew on first detection")
	}
	if out.CoreBelief != "I am only worth what I produce" {
		t.Fatalf("unexpected core belief: %q", out.CoreBelief)
	}
}

func TestAdvanceCoreBeliefWithoutInsightDoesNotComplete(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerEmotion

	out := Advance(sess, reflection.LayerCoreBelief, "   ")
	if out.IsCompleted {
		t.Fatal("completion requires a non-empty insight")
	}
	if out.Layer != reflection.LayerCoreBelief {
		t.Fatalf("layer should still advance, got %s", out.Layer)
	}
}

func TestAdvanceRegressionBeforeDetectionIsAccepted(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerEmotion

	out := Advance(sess, reflection.LayerTrigger, "a new trigger surfaced")
	if out.Layer != reflection.LayerTrigger {
		t.Fatalf("expected regression to be accepted pre-detection, got %s", out.Layer)
	}
	if out.Inconsistent {
		t.Fatal("pre-detection regression should not be flagged inconsistent")
	}
}

func TestAdvanceRegressionAfterDetectionIsClamped(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerCoreBelief
	sess.CoreBelief = "I am not enough"
	sess.CoreBeliefDetected = true

	out := Advance(sess, reflection.LayerSurface, "back to the start")
	if out.Layer != reflection.LayerCoreBelief {
		t.Fatalf("expected layer clamp post-detection, got %s", out.Layer)
	}
	if !out.Inconsistent {
		t.Fatal("post-detection regression should be flagged inconsistent")
	}
	if out.CoreBelief != "I am not enough" {
		t.Fatalf("core belief must not change, got %q", out.CoreBelief)
	}
}

func TestAdvanceCompletionIsTerminal(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerCoreBelief
	sess.CoreBelief = "I am not enough"
	sess.CoreBeliefDetected = true
	sess.IsCompleted = true

	out := Advance(sess, reflection.LayerCoreBelief, "a second phrasing of the belief")
	if !out.IsCompleted {
		t.Fatal("completion must be terminal")
	}
	if out.CoreBeliefNew {
		t.Fatal("already detected belief must not be reported as new")
	}
	if out.CoreBelief != "I am not enough" {
		t.Fatalf("core belief must stay first-detected, got %q", out.CoreBelief)
	}
}

func TestAdvanceUnknownReportedLayerKeepsCurrent(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerTrigger

	out := Advance(sess, reflection.Layer("subconscious"), "insight text")
	if out.Layer != reflection.LayerTrigger {
		t.Fatalf("unknown layer must keep current, got %s", out.Layer)
	}
	if !out.Inconsistent {
		t.Fatal("unknown non-empty layer should be flagged inconsistent")
	}
}

func TestAdvanceEmptyReportedLayerKeepsCurrentQuietly(t *testing.T) {
	sess := reflection.NewSession("s1", "u1")
	sess.CurrentLayer = reflection.LayerEmotion

	out := Advance(sess, "", "")
	if out.Layer != reflection.LayerEmotion {
		t.Fatalf("empty report must keep current layer, got %s", out.Layer)
	}
	if out.Inconsistent {
		t.Fatal("empty report should not be flagged inconsistent")
	}
}
