/*
Package config loads the daemon's JSON configuration file.

Load resolves the path from its argument or the PROC_POOL_CONFIG
environment variable, reads it with viper, applies defaults, and returns
a validated Config tree. PROC_POOL_-prefixed environment variables
override file values key by key (PROC_POOL_STARTUP_CONCURRENCY=4).

State buckets, interact actions, and endpoint routes ship with built-in
defaults; file entries merge over them per key, so a config only needs
startup.db.* and runtime.task.finished_task_log to boot a daemon.
*/
package config
