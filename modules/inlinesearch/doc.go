// Package inlinesearch streams weather artifacts for free-text inline queries.
//
// The first page request for a query starts a session whose producer pool
// geocodes the text and computes one forecast chart and one radar loop per
// candidate location. Results land on the session's buffered stream in
// completion order. Every page request drains what is ready, skips results
// already delivered in that session, and answers with a cursor naming the same
// session so the client can keep paging. A finished session is released after
// a short grace period, or immediately when it is superseded or its answer
// cannot be delivered.
package inlinesearch
