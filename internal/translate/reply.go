package translate

import (
	"context"
	"encoding/json"
	"log"

	"github.com/tilahungoito/healthydoc/internal/models"
)

// TranslateReply rewrites the text fields of a reply from one language to
// another. A structure-preserving JSON translation is attempted first; when
// that is unavailable each field is translated on its own. Fields whose
// translation fails keep their original text, and the boolean flags and
// urgency are never altered.
func TranslateReply(ctx context.Context, chain *Chain, jt JSONTranslator, reply *models.DoctorReply, from, to string) {
	if reply == nil || from == to {
		return
	}

	if jt != nil {
		if translated, ok := translateReplyJSON(ctx, jt, reply, from, to); ok {
			*reply = translated
			return
		}
	}

	if chain.Len() == 0 {
		return
	}
	if out, err := chain.Translate(ctx, reply.Response, from, to); err == nil && out != "" {
		reply.Response = out
	}
	if reply.Summary != "" {
		if out, err := chain.Translate(ctx, reply.Summary, from, to); err == nil && out != "" {
			reply.Summary = out
		}
	}
	for i, rec := range reply.Recommendations {
		if out, err := chain.Translate(ctx, rec, from, to); err == nil && out != "" {
			reply.Recommendations[i] = out
		}
	}
	for i, p := range reply.Prescriptions {
		if out, err := chain.Translate(ctx, p, from, to); err == nil && out != "" {
			reply.Prescriptions[i] = out
		}
	}
}

func translateReplyJSON(ctx context.Context, jt JSONTranslator, reply *models.DoctorReply, from, to string) (models.DoctorReply, bool) {
	raw, err := json.Marshal(reply)
	if err != nil {
		return models.DoctorReply{}, false
	}
	translated, err := jt.TranslateJSON(ctx, string(raw), from, to)
	if err != nil {
		log.Printf("json translation failed (%s->%s): %v", from, to, err)
		return models.DoctorReply{}, false
	}
	var out models.DoctorReply
	if err := json.Unmarshal([]byte(translated), &out); err != nil || out.Response == "" {
		return models.DoctorReply{}, false
	}
	// Flags and urgency come from the original reply regardless of what the
	// translator returned.
	out.IsFollowUp = reply.IsFollowUp
	out.IsComplete = reply.IsComplete
	out.Urgency = reply.Urgency
	return out, true
}
