package patterns

// DefaultDenylist returns the prefixes of OS maintenance directories inside an
// instance root filesystem whose changes are never forwarded. Each call
// returns a fresh slice; callers build one Matcher at startup and share it.
func DefaultDenylist() []string {
	return []string{
		"/var/lib/snapd", "/snap/", "/var/log/", "/var/run/utmp", "/var/run/wtmp", "/var/run/btmp",
		"/tmp/", "/var/tmp/", "/var/cache/", "/var/lib/apt/", "/var/lib/dpkg/", "/var/lib/systemd/",
		"/var/lib/dbus/", "/var/lib/NetworkManager/", "/var/lib/ucf/", "/var/lib/apt/lists/",
		"/var/lock/", "/var/lib/lock/", "/var/lib/rpm/", "/var/lib/pacman/", "/var/run/",
		"/run/", "/usr/bin/", "/usr/sbin/", "/usr/lib/", "/lib/", "/lib64/", "/sbin/", "/bin/",
		"/tmp/.X11-unix/", "/var/lib/lightdm/", "/var/lib/gdm3/", "/var/lib/sddm/", "/var/crash/",
		"/var/lib/AccountsService/", "/var/lib/alsa/", "/var/lib/bluetooth/", "/var/lib/colord/",
		"/var/lib/connman/", "/var/lib/console-setup/", "/var/lib/dhcp/", "/var/lib/dovecot/",
		"/var/lib/flatpak/", "/var/lib/fwupd/", "/var/lib/hwclock/",
		"/var/lib/iio-sensor-proxy/", "/var/lib/initramfs-tools/", "/var/lib/initscripts/",
		"/var/lib/insserv/", "/var/lib/ipsec/", "/var/lib/iscsi/", "/var/lib/kubelet/",
		"/var/lib/libvirt/", "/var/lib/logrotate/", "/var/lib/machines/", "/var/lib/mdadm/",
		"/var/lib/misc/", "/var/lib/mlocate/", "/var/lib/nginx/",
		"/var/lib/nodm/", "/var/lib/nss/", "/var/lib/nut/", "/var/lib/openvpn/", "/var/lib/pam/",
		"/var/lib/pciutils/", "/var/lib/plymouth/", "/var/lib/polkit-1/", "/var/lib/postgresql/",
		"/var/lib/pulse/", "/var/lib/rsyslog/", "/var/lib/samba/",
		"/var/lib/snapd/", "/var/lib/snmp/", "/var/lib/sssd/", "/var/lib/stratisd/", "/var/lib/sudo/",
		"/var/lib/tor/", "/var/lib/udisks2/",
		"/var/lib/unattended-upgrades/", "/var/lib/upower/", "/var/lib/usbutils/", "/var/lib/vmware/",
		"/var/lib/xdm/", "/var/lib/xkb/", "/etc/", "/boot/", "/proc/", "/sys/", "/dev/",
	}
}
