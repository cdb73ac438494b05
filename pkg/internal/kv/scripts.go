package kv

import "github.com/redis/go-redis/v9"

// Script results. Positive means applied, zero means the target key was
// already taken, negatives name the guard that refused the step.
const (
	resultApplied      = 1
	resultOccupied     = 0
	resultNotFound     = -1
	resultClosed       = -2
	resultBadIndex     = -3
	resultNotAuthority = -4
)

// KEYS: poll hash, poll index, authority index
// ARGV: address, field/value pairs of the poll hash
var createPollScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

// KEYS: voter record hash, poll hash, voters of the poll
// ARGV: option index, record address, poll address, voter, bump, timestamp
var commitVoteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[2], 'status') ~= '1' then
	return -2
end
local index = tonumber(ARGV[1])
if index >= tonumber(redis.call('HGET', KEYS[2], 'option_count')) then
	return -3
end
redis.call('HSET', KEYS[1],
	'address', ARGV[2],
	'poll', ARGV[3],
	'voter', ARGV[4],
	'option_index', ARGV[1],
	'bump', ARGV[5],
	'created_at', ARGV[6])
redis.call('HINCRBY', KEYS[2], 'votes:' .. ARGV[1], 1)
redis.call('HSET', KEYS[2], 'updated_at', ARGV[6])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

// KEYS: poll hash
// ARGV: authority, timestamp
var closePollScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'authority') ~= ARGV[1] then
	return -4
end
if redis.call('HGET', KEYS[1], 'status') ~= '1' then
	return -2
end
redis.call('HSET', KEYS[1], 'status', '0', 'updated_at', ARGV[2])
return 1
`)
