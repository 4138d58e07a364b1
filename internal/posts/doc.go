// Package posts binds the /postings routes and tracks post generation.
//
// A Tracker follows one post on post:<id>. It folds status_update and
// video_status frames through the same status ladder used for fetched posts,
// so a post reopened mid-generation lands on the right state. A Feed follows
// every post of an influencer on influencer:<id> through post_update frames.
package posts
