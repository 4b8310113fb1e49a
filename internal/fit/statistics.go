package fit

// GlobalFit holds the M2-family global fit summary. Values are raw;
// whether they clear conventional cutoffs (RMSEA <= .06, SRMSR <= .08,
// CFI >= .95) is a reporting concern, not a correctness check.
type GlobalFit struct {
	M2      float64 `json:"m2"`
	DF      int     `json:"df"`
	PValue  float64 `json:"p_value"`
	RMSEA   float64 `json:"rmsea"`
	RMSEALo float64 `json:"rmsea_lo"`
	RMSEAHi float64 `json:"rmsea_hi"`
	SRMSR   float64 `json:"srmsr"`
	CFI     float64 `json:"cfi"`
}

// ItemFit holds one item's S-X2 summary.
type ItemFit struct {
	Name   string  `json:"name"`
	SX2    float64 `json:"s_x2"`
	DF     int     `json:"df"`
	PValue float64 `json:"p_value"`
	RMSEA  float64 `json:"rmsea"`
}

// Statistics bundles the global and per-item fit results for one
// fitted model. Derived, never mutated: a fresh Assess call recomputes
// everything from the model and the data.
type Statistics struct {
	Global GlobalFit `json:"global"`
	Items  []ItemFit `json:"items"`
}
