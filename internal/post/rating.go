// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"time"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
)

// RatingReplayWindow bounds how old a rating may be before it is discarded
// as a replay (spec.md §4.8 "discard if older than 5 minutes (replay)").
const RatingReplayWindow = 5 * time.Minute

// ComposeRating builds and signs a vote on a post, rejecting self-ratings
// (spec.md §4.8 "On a user vote: update local aggregate (reject
// self-ratings), sign, and broadcast.").
func ComposeRating(postID [16]byte, voter string, vote string, reputation float64, author string, signKey sigcrypto.SignKeyPair) (Rating, error) {
	if voter == author {
		return Rating{}, errs.New(errs.KindInvalidSignature, "self-ratings are rejected")
	}
	if vote != VoteUp && vote != VoteDown {
		return Rating{}, errs.New(errs.KindInvalidSignature, "vote must be up or down")
	}
	r := Rating{
		PostID:     postID,
		Voter:      voter,
		Vote:       vote,
		Reputation: reputation,
		Timestamp:  time.Now().UnixMilli(),
		VoterPK:    signKey.Public,
	}
	signable := sigcrypto.RatingSignable{PostID: postID[:], Voter: voter, Vote: vote, Timestamp: r.Timestamp}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return Rating{}, errs.Wrap(errs.KindInvalidSignature, err, "encoding rating signable")
	}
	r.Signature = sigcrypto.Sign(signKey.Private, msg)
	return r, nil
}

// RatingAggregate is the running up/down tally for a post.
type RatingAggregate struct {
	Up   int
	Down int
}

// ApplyRating verifies an incoming post_rating and applies it, rejecting
// replays older than RatingReplayWindow (spec.md §4.8 "On reception: verify
// signature, discard if older than 5 minutes (replay), then apply").
func ApplyRating(agg *RatingAggregate, r Rating, author string, now time.Time) error {
	if r.Voter == author {
		return errs.New(errs.KindInvalidSignature, "self-ratings are rejected")
	}
	signable := sigcrypto.RatingSignable{PostID: r.PostID[:], Voter: r.Voter, Vote: r.Vote, Timestamp: r.Timestamp}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return errs.Wrap(errs.KindInvalidSignature, err, "encoding rating signable")
	}
	if !sigcrypto.Verify(r.VoterPK, msg, r.Signature) {
		return errs.New(errs.KindInvalidSignature, "rating signature invalid")
	}
	age := now.Sub(time.UnixMilli(r.Timestamp))
	if age > RatingReplayWindow {
		return errs.New(errs.KindInvalidSignature, "rating is a stale replay")
	}

	switch r.Vote {
	case VoteUp:
		agg.Up++
	case VoteDown:
		agg.Down++
	default:
		return errs.New(errs.KindInvalidSignature, "vote must be up or down")
	}
	return nil
}
