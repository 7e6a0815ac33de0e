package routing

import "strings"

type Kind string

const (
	KindSubmission           Kind = "submit_sm"
	KindSubmissionAck        Kind = "submit_sm_resp"
	KindDeliveryNotification Kind = "dlr"
	KindUnknown              Kind = "unknown"
)

const (
	PrefixSubmissionAck        = "submit.sm.resp."
	PrefixSubmission           = "submit.sm."
	PrefixDeliveryNotification = "dlr_thrower."
)

// Route is the result of classifying a topic label.
type Route struct {
	Kind Kind
	// Suffix is whatever follows the matched prefix. For submissions this is
	// the routed channel id.
	Suffix string
}

// prefixes is ordered most specific first: submit.sm.resp. shares its head with submit.sm.
var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{PrefixSubmissionAck, KindSubmissionAck},
	{PrefixSubmission, KindSubmission},
	{PrefixDeliveryNotification, KindDeliveryNotification},
}

func Classify(topic string) Route {
	for _, p := range prefixes {
		if strings.HasPrefix(topic, p.prefix) {
			return Route{Kind: p.kind, Suffix: topic[len(p.prefix):]}
		}
	}
	return Route{Kind: KindUnknown}
}
