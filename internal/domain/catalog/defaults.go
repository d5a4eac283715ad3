package catalog

// DefaultModifiers are the modifier descriptions used when a tenant has not
// loaded its own.
func DefaultModifiers() []ModifierInfo {
	return []ModifierInfo{
		{Code: "24", Description: "Unrelated E/M service during a postoperative period"},
		{Code: "25", Description: "Significant, separately identifiable E/M service on the same day as a procedure"},
		{Code: "26", Description: "Professional component"},
		{Code: "50", Description: "Bilateral procedure"},
		{Code: "51", Description: "Multiple procedures"},
		{Code: "57", Description: "Decision for surgery"},
		{Code: "59", Description: "Distinct procedural service"},
		{Code: "76", Description: "Repeat procedure by same physician"},
		{Code: "79", Description: "Unrelated procedure during the postoperative period"},
		{Code: "LT", Description: "Left side"},
		{Code: "RT", Description: "Right side"},
		{Code: "TC", Description: "Technical component"},
		{Code: "XE", Description: "Separate encounter"},
		{Code: "XP", Description: "Separate practitioner"},
		{Code: "XS", Description: "Separate structure or organ"},
		{Code: "XU", Description: "Unusual non-overlapping service"},
	}
}

// DefaultModifierRules is the baseline rule table shipped with the service.
// Tenants add payer-specific rows on top.
func DefaultModifierRules() []ModifierRule {
	return []ModifierRule{
		{
			ID: "EM-25", Kind: KindEMWithProcedure, CPT: "992*", SecondaryCPT: "1*", Modifier: "25",
			Required: true, Confidence: 0.9,
			Rationale: "E/M billed on the same day as a minor procedure needs 25 to be paid separately",
		},
		{
			ID: "EM-25-INJ", Kind: KindEMWithProcedure, CPT: "992*", SecondaryCPT: "9637*", Modifier: "25",
			Confidence: 0.8,
			Rationale:  "E/M billed with a therapeutic injection is usually bundled without 25",
		},
		{
			ID: "BILAT-20610", Kind: KindBilateral, CPT: "20610", Modifier: "50", Confidence: 0.85,
			Rationale: "Major joint arthrocentesis on both sides is reported once with 50",
		},
		{
			ID: "BILAT-69210", Kind: KindBilateral, CPT: "69210", Modifier: "50", Confidence: 0.85,
			Rationale: "Cerumen removal from both ears is reported once with 50",
		},
		{
			ID: "BILAT-64450", Kind: KindBilateral, CPT: "64450", Modifier: "50", Confidence: 0.8,
			Rationale: "Peripheral nerve block performed bilaterally takes 50",
		},
		{
			ID: "DIST-17000-11102", Kind: KindDistinct, CPT: "17000", SecondaryCPT: "1110*", Modifier: "59",
			Confidence: 0.7,
			Rationale:  "Biopsy and destruction of separate lesions are distinct services",
		},
		{
			ID: "PAIR-17110-11102", Kind: KindPair, CPT: "17110", SecondaryCPT: "11102", Modifier: "XS",
			Confidence: 0.75,
			Rationale:  "Tangential biopsy of a separate structure alongside wart destruction",
		},
		{
			ID: "MULT-SURG", Kind: KindMultipleProcedure, CPT: "1*", Modifier: "51",
			Exempt:     []string{"11101", "11103", "11105", "11107", "17003", "17004"},
			Confidence: 0.6,
			Rationale:  "Secondary surgical procedures in the same session take the multiple procedure reduction",
		},
		{
			ID: "EXCL-50-LT", Kind: KindExclusive, Modifiers: []string{"50", "LT"}, Keep: "50",
			Rationale: "50 already reports both sides",
		},
		{
			ID: "EXCL-50-RT", Kind: KindExclusive, Modifiers: []string{"50", "RT"}, Keep: "50",
			Rationale: "50 already reports both sides",
		},
		{
			ID: "EXCL-LT-RT", Kind: KindExclusive, Modifiers: []string{"LT", "RT"},
			Rationale: "A single line cannot be both left and right; split the line or use 50",
		},
		{
			ID: "EXCL-59-X", Kind: KindExclusive, Modifiers: []string{"59", "XS"}, Keep: "XS",
			Rationale: "Use the more specific X modifier instead of 59",
		},
		{
			ID: "EXCL-26-TC", Kind: KindExclusive, Modifiers: []string{"26", "TC"},
			Rationale: "Professional and technical components are billed as separate lines or globally",
		},
	}
}
