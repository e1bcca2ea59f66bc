// Package live pushes engine-side updates to connected frontends over
// websockets: health changes, tips from triggered rules and schedule
// progress. Delivery is best effort; a client that cannot keep up is
// dropped.
package live
