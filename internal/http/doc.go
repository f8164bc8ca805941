// Package http exposes the supervision scheduler over JSON/HTTP.
//
// Every route requires an HS256 bearer token whose `sub` claim is the acting
// user id and whose `role` claim is STUDENT or ADMIN. Path identifiers of
// sessions, swap requests and availability blocks must be UUIDs.
//
//   - POST /supervisions, GET /supervisions?user=&series=&from=&to=: materialise a
//     weekly series (admin) and list sessions. Series responses carry advisory
//     conflicts keyed by session id.
//   - GET, PUT, DELETE /supervisions/{id}: read, edit (admin) and delete (admin)
//     a single session.
//   - GET /supervisions/{id}/swap-targets: students the caller could swap with.
//   - POST /conflicts/availability, POST /conflicts/enrollments: advisory checks
//     for a window and a list of students.
//   - POST /swap-requests, GET /swap-requests, GET /swap-requests/pending-count,
//     POST /swap-requests/{id}/accept|reject|cancel: the swap request lifecycle.
//   - GET /availability[?date=YYYY-MM-DD], POST /availability,
//     DELETE /availability/{id}: busy slots and organisation-wide blocks.
//   - GET /users, PUT /users/{id}: assignable users and directory sync (admin).
//
// Request/response DTOs live alongside their respective handlers.
package http
