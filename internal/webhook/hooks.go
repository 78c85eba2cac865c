package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxBodySize caps webhook payloads. GitHub's documented maximum is
// ~25 MB for push events with large commit histories.
const maxBodySize = 32 * 1024 * 1024

// zeroSHA is the "after" value GitHub sends when a branch is deleted.
const zeroSHA = "0000000000000000000000000000000000000000"

// verifySignature checks an X-Hub-Signature-256 header value against
// the HMAC-SHA256 of body. The comparison is constant-time and the
// error never includes the expected digest.
func verifySignature(secret, body []byte, signature string) error {
	if signature == "" {
		return errors.New("missing X-Hub-Signature-256 header")
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return errors.New("signature mismatch")
	}
	return nil
}

// pushPayload is the subset of GitHub's push event the gate reads.
type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// prPayload is the subset of GitHub's pull_request event the gate reads.
type prPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

// decision is the outcome of gating one verified delivery.
type decision struct {
	dispatch bool
	trigger  string // provenance label for the run
	sha      string // commit the delivery points at, if any
	reason   string // why the delivery was ignored
}

// decide applies the branch gate: push events run only for the watched
// branch's ref, pull_request events only for PRs targeting it with an
// action that changes code. Anything else is ignored, not an error.
func decide(eventType string, body []byte, branch string) (decision, error) {
	switch eventType {
	case "push":
		var p pushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return decision{}, fmt.Errorf("malformed push payload: %w", err)
		}
		want := "refs/heads/" + branch
		if p.Ref != want {
			return decision{reason: fmt.Sprintf("ref %s is not %s", p.Ref, want)}, nil
		}
		if p.After == "" || p.After == zeroSHA {
			return decision{reason: "push carries no commit"}, nil
		}
		return decision{dispatch: true, trigger: "push:" + shortSHA(p.After), sha: p.After}, nil

	case "pull_request":
		var p prPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return decision{}, fmt.Errorf("malformed pull_request payload: %w", err)
		}
		switch p.Action {
		case "opened", "synchronize", "reopened":
		default:
			return decision{reason: fmt.Sprintf("action %s does not trigger runs", p.Action)}, nil
		}
		if p.PullRequest.Base.Ref != branch {
			return decision{reason: fmt.Sprintf("base %s is not %s", p.PullRequest.Base.Ref, branch)}, nil
		}
		return decision{dispatch: true, trigger: fmt.Sprintf("pr:%d", p.Number), sha: p.PullRequest.Head.SHA}, nil

	default:
		return decision{reason: fmt.Sprintf("event %s does not trigger runs", eventType)}, nil
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
