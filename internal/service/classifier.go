package service

import (
	"phishguard/internal/model"
	"phishguard/internal/utils"
)

const DefaultFuzzyTolerance = 3

// MatchBase selects which list a similarity tier compares against.
type MatchBase int

const (
	// MatchAllowed iterates the allow-list in ascending order.
	MatchAllowed MatchBase = iota
	// MatchSeeds iterates the fuzzy seeds in aggregation order.
	MatchSeeds
)

type ClassifierOptions struct {
	Tolerance        int
	FuzzyAgainst     MatchBase
	HomoglyphAgainst MatchBase
}

func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		Tolerance:        DefaultFuzzyTolerance,
		FuzzyAgainst:     MatchSeeds,
		HomoglyphAgainst: MatchAllowed,
	}
}

var unknownResult = model.ClassificationResult{Category: model.CategoryUnknown}

// Classify runs the tiered match for rawDomain against snap. It performs no
// I/O and returns the same result for the same inputs. Tiers, first match
// wins: exact (blocked before allowed, most specific label first),
// homoglyph, edit distance. The similarity tiers compare every candidate
// suffix, so a lookalike hidden under a subdomain is still caught. Without
// an allow-list they have nothing to protect and are skipped.
func Classify(rawDomain string, snap *Snapshot, opts ClassifierOptions) model.ClassificationResult {
	host := Normalize(rawDomain)
	if host == "" || snap == nil {
		return unknownResult
	}

	candidates := Candidates(host)
	for _, candidate := range candidates {
		if snap.IsBlocked(candidate) {
			return model.ClassificationResult{IsPhishing: true, Category: model.CategoryBlocked, MatchedAgainst: candidate}
		}
		if snap.IsAllowed(candidate) {
			return model.ClassificationResult{IsPhishing: false, Category: model.CategoryAllowed, MatchedAgainst: candidate}
		}
	}

	if snap.AllowedCount() == 0 {
		return unknownResult
	}
	if len(candidates) == 0 {
		candidates = []string{host}
	}

	for _, target := range matchList(snap, opts.HomoglyphAgainst) {
		for _, candidate := range candidates {
			if homoglyphEqual(candidate, target) {
				utils.Log.Debug("homoglyph match", utils.Field("domain", host), utils.Field("target", target))
				return fuzzyResult(target)
			}
		}
	}

	for _, seed := range matchList(snap, opts.FuzzyAgainst) {
		for _, candidate := range candidates {
			if withinDistance(candidate, seed, opts.Tolerance) {
				utils.Log.Debug("fuzzy match", utils.Field("domain", host), utils.Field("seed", seed))
				return fuzzyResult(seed)
			}
		}
	}

	return unknownResult
}

func matchList(snap *Snapshot, base MatchBase) []string {
	if base == MatchSeeds {
		return snap.FuzzySeeds()
	}
	return snap.AllowedSorted()
}

func fuzzyResult(target string) model.ClassificationResult {
	return model.ClassificationResult{IsPhishing: true, Category: model.CategoryFuzzy, MatchedAgainst: target}
}
