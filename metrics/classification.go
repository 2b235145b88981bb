// Package metrics provides the evaluation metrics fed to the convergence
// controller by the crop-classification training drivers.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/RALE0/croptrain/pkg/errors"
)

// probability clipping bound for LogLoss, matching the convention of keeping
// log arguments strictly inside (0, 1).
const logLossEps = 1e-15

// Accuracy computes the fraction of predictions matching the true labels.
// Labels are compared exactly; callers round probabilistic outputs first.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewUsageError("Accuracy", "empty label vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewUsageErrorf("Accuracy", "length mismatch: %d true labels, %d predictions", n, yPred.Len())
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// LogLoss computes the mean binary cross-entropy between true labels in
// {0, 1} and predicted positive-class probabilities. Probabilities are
// clipped away from 0 and 1 so a single overconfident miss cannot produce an
// infinite loss.
func LogLoss(yTrue, probs *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewUsageError("LogLoss", "empty label vector")
	}
	if probs.Len() != n {
		return 0, errors.NewUsageErrorf("LogLoss", "length mismatch: %d true labels, %d probabilities", n, probs.Len())
	}

	var sum float64
	for i := 0; i < n; i++ {
		y := yTrue.AtVec(i)
		if y != 0 && y != 1 {
			return 0, errors.NewUsageErrorf("LogLoss", "label at index %d is %v, want 0 or 1", i, y)
		}
		p := probs.AtVec(i)
		if math.IsNaN(p) {
			return 0, errors.NewNumericalInstabilityError("log_loss_probability", p, i)
		}
		p = math.Min(math.Max(p, logLossEps), 1-logLossEps)
		sum += -(y*math.Log(p) + (1-y)*math.Log(1-p))
	}
	return sum / float64(n), nil
}

// F1Score computes the binary F1 score with labels in {0, 1}. When no
// positive predictions or no positive labels exist the score is defined as
// zero and an UndefinedMetric-style warning is raised instead of an error, so
// early noisy epochs do not abort training.
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewUsageError("F1Score", "empty label vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewUsageErrorf("F1Score", "length mismatch: %d true labels, %d predictions", n, yPred.Len())
	}

	var tp, fp, fn float64
	for i := 0; i < n; i++ {
		switch {
		case yPred.AtVec(i) == 1 && yTrue.AtVec(i) == 1:
			tp++
		case yPred.AtVec(i) == 1 && yTrue.AtVec(i) == 0:
			fp++
		case yPred.AtVec(i) == 0 && yTrue.AtVec(i) == 1:
			fn++
		}
	}

	if tp+fp == 0 || tp+fn == 0 {
		errors.Warn(errors.NewConvergenceWarning("f1", n, "no positive predictions or labels; score defined as 0"))
		return 0, nil
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	if precision+recall == 0 {
		return 0, nil
	}
	return 2 * precision * recall / (precision + recall), nil
}
