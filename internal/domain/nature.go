package domain

// Road natures known to the link table.
const (
	NatureSingleCarriageway           = "Single Carriageway"
	NatureTrafficIslandLink           = "Traffic Island Link"
	NatureDualCarriageway             = "Dual Carriageway"
	NatureRoundabout                  = "Roundabout"
	NatureTrafficIslandLinkAtJunction = "Traffic Island Link At Junction"
	NatureSlipRoad                    = "Slip Road"
)

// DefaultNatures returns a fresh copy of the six-entry nature catalogue.
func DefaultNatures() []string {
	return []string{
		NatureSingleCarriageway,
		NatureTrafficIslandLink,
		NatureDualCarriageway,
		NatureRoundabout,
		NatureTrafficIslandLinkAtJunction,
		NatureSlipRoad,
	}
}

// IsCatalogueNature reports whether nature is an exact catalogue entry.
func IsCatalogueNature(catalogue []string, nature string) bool {
	for _, n := range catalogue {
		if n == nature {
			return true
		}
	}
	return false
}
