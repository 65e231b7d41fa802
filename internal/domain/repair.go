package domain

import "strings"

// CSU-CHILL PPI volumes ship with sweep boundaries that include the antenna
// transition rays between elevations. These are the corrected bounds for the
// standard six-sweep PPI schedule.
var (
	chillSweepStarts = []int{0, 382, 789, 1208, 1604, 2027}
	chillSweepEnds   = []int{381, 788, 1176, 1567, 1993, 2428}
)

// FixSurveillanceFilename normalizes the inconsistent ROSE scan-naming
// schemes. Files whose name carries an "s0..." scan token 17 characters from
// the end have that token (11 characters, or 12 when it ends in a trailing
// zero) replaced with the canonical "SUR_" surveillance tag. Already-correct
// names pass through unchanged.
func FixSurveillanceFilename(name string) string {
	end := len(name)
	if end < 17 || name[end-17:end-15] != "s0" {
		return name
	}
	chop := name[end-17 : end-6]
	if strings.HasSuffix(chop, "0") {
		long := name[end-17 : end-5]
		name = strings.ReplaceAll(name, long, "SUR_")
	}
	return strings.ReplaceAll(name, chop, "SUR_")
}

// FixCHILLSweepIndices overwrites the sweep start/end ray indices with the
// corrected CSU-CHILL PPI bounds, omitting the transition rays between
// sweeps. The fixed schedule applies regardless of what the file reported.
func FixCHILLSweepIndices(vol *Volume) *Volume {
	vol.SweepStartRay = append([]int(nil), chillSweepStarts...)
	vol.SweepEndRay = append([]int(nil), chillSweepEnds...)
	vol.recordStep(StepChillSweepFix)
	return vol
}
