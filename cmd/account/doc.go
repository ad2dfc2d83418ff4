// Package account is the user directory of vidtube.
//
// It owns the Account record (identity, credentials reference, profile images,
// the single stored refresh-token digest and the watch history) and the
// read models built on top of it: channel profiles and watch-history projections.
//
// Three Directory implementations are provided: an in-memory store for development
// and tests, a PostgreSQL store over pgx, and a MongoDB document store.
// All of them honor the same contract: unique, case-normalized username and email,
// and atomic single-record updates for refresh-token rotation.
package account
