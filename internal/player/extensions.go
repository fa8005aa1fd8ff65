package player

// Extensions is the set of CPE extensions a connection negotiated.
// Immutable once built: a player's supported set is written exactly
// once (during CpeNegotiate) and read many times afterward.
type Extensions struct {
	FullCP437      bool
	LongerMessages bool
	EmoteFix       bool
}

// Name/version pairs we advertise during CPE negotiation.
const (
	ExtFullCP437      = "FullCP437"
	ExtLongerMessages = "LongerMessages"
	ExtEmoteFix       = "EmoteFix"
	ExtVersion        = 1
)

// Offered lists every extension this server supports, in the order we
// advertise them in our ExtInfo.
func Offered() []struct {
	Name    string
	Version int
} {
	return []struct {
		Name    string
		Version int
	}{
		{ExtFullCP437, ExtVersion},
		{ExtLongerMessages, ExtVersion},
		{ExtEmoteFix, ExtVersion},
	}
}

// Negotiate computes the session's enabled extension set: the
// intersection of what the client advertised and what we offer.
func Negotiate(clientExts map[string]int) Extensions {
	var e Extensions
	if v, ok := clientExts[ExtFullCP437]; ok && v == ExtVersion {
		e.FullCP437 = true
	}
	if v, ok := clientExts[ExtLongerMessages]; ok && v == ExtVersion {
		e.LongerMessages = true
	}
	if v, ok := clientExts[ExtEmoteFix]; ok && v == ExtVersion {
		e.EmoteFix = true
	}
	return e
}
