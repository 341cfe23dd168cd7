// Package sw implements the cache lifecycle controller that governs request
// interception for one registration scope. A Controller is built from an
// immutable Build (cache version, static assets, strategy), moves through
// install and activate, and from then on routes every fetch through the
// named strategy selected by the build. Registration owns the installing,
// waiting and active controllers and performs byte-identical update checks,
// skip-waiting and redundancy transitions. Clients, the notification surface
// and the origin network are injected collaborators so every event kind
// (install, activate, fetch, sync, periodic sync, push, notification click,
// message) can be exercised independently.
package sw
