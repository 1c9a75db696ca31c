// Package domain models coastal parcels, the indicators derived from them,
// and the risk events that drive user alerts.
//
// # Records
//
// A [ParcelRecord] is written by upstream ingestion and is read-only here.
// Each parcel owns at most one [ComputedOutput], the document the staged
// pipeline fills in. Every [RiskEvent] is write-once.
//
// # Field ownership
//
// ComputedOutput fields are grouped by the stage that owns them:
//
//	vegetation:    mangScore, lostArea, state, dropPct, extraCarbon, needsReview, analysis
//	vulnerability: vulnScore
//	risk:          riskScore, riskBand
//
// Stages write through an [OutputPatch]; a patch can only carry fields its
// stage owns, so a stage never clobbers a sibling's group.
//
// # Scoring
//
// Inputs on the 0–100 scale are clamped before they are combined:
//
//	riskScore = round(.35*rain + .30*tide + .25*vuln + .10*exposure)
//	band:       <40 Green | <70 Yellow | otherwise Red
//	vulnScore = round(.3*elev + .3*dist + .2*landCover + .2*mangScore)
//
// The reason ("why") lists every input at or above the driver threshold (60)
// in rain, tide, vulnerability, exposure order joined with " + ", or
// "moderate combined factors" when none qualifies.
//
// # Vegetation
//
// Stage 1 combines the vision verdict with the greenness drop signal. The
// parcel is in Loss when the verdict says so or the drop reaches the loss
// threshold (25%). Lost area and extra carbon follow from the drop only when
// the parcel is in Loss.
//
// # Rounding
//
// Numeric rounding is half away from zero, matching the values persisted by
// earlier deployments: scores and dropPct are whole numbers, lostArea and
// extraCarbon keep two decimals.
package domain
